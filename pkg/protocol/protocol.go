// Package protocol implements the LeaseGate wire format: a little-endian
// int32 length prefix followed by that many bytes of JSON.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Version is the protocol version carried in every envelope.
const Version = "1.0"

// Command names.
const (
	CommandAcquire = "Acquire"
	CommandRelease = "Release"
)

// DefaultMaxFrameBytes caps a single frame's payload.
const DefaultMaxFrameBytes = 16 << 20

const lengthPrefixSize = 4

var (
	// ErrInvalidLength is returned for a zero or negative length prefix.
	ErrInvalidLength = errors.New("protocol: invalid payload length")
	// ErrFrameTooLarge is returned when the prefix exceeds the frame limit.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	// ErrTruncatedFrame is returned when the stream ends mid-frame.
	ErrTruncatedFrame = errors.New("protocol: unexpected EOF while reading framed message")
)

// CommandRequest is the envelope a client sends.
type CommandRequest struct {
	ProtocolVersion string `json:"protocolVersion"`
	Command         string `json:"command"`
	PayloadJSON     string `json:"payloadJson"`
}

// CommandResponse is the envelope the server returns.
type CommandResponse struct {
	ProtocolVersion string `json:"protocolVersion"`
	Success         bool   `json:"success"`
	PayloadJSON     string `json:"payloadJson"`
	Error           string `json:"error,omitempty"`
}

// NewCommand marshals payload into a command envelope.
func NewCommand(command string, payload any) (CommandRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CommandRequest{}, fmt.Errorf("protocol: encode %s payload: %w", command, err)
	}
	return CommandRequest{
		ProtocolVersion: Version,
		Command:         command,
		PayloadJSON:     string(body),
	}, nil
}

// Success marshals payload into a successful response envelope.
func Success(payload any) (CommandResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("protocol: encode response payload: %w", err)
	}
	return CommandResponse{
		ProtocolVersion: Version,
		Success:         true,
		PayloadJSON:     string(body),
	}, nil
}

// Failure builds a failed response envelope carrying msg.
func Failure(msg string) CommandResponse {
	return CommandResponse{
		ProtocolVersion: Version,
		Success:         false,
		Error:           msg,
	}
}

// DecodePayload unmarshals an envelope's payload JSON into v.
func DecodePayload(payloadJSON string, v any) error {
	if payloadJSON == "" {
		return errors.New("protocol: empty payload")
	}
	if err := json.Unmarshal([]byte(payloadJSON), v); err != nil {
		return fmt.Errorf("protocol: decode payload: %w", err)
	}
	return nil
}

// WriteFrame encodes v as JSON and writes it as one frame.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode frame: %w", err)
	}
	buf := make([]byte, lengthPrefixSize+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[lengthPrefixSize:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r and decodes it into v.
// maxBytes <= 0 selects DefaultMaxFrameBytes.
func ReadFrame(r io.Reader, v any, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}

	var prefix [lengthPrefixSize]byte
	if err := readFull(r, prefix[:]); err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(prefix[:]))
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	if int64(n) > int64(maxBytes) {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, n, maxBytes)
	}

	body := make([]byte, n)
	if err := readFull(r, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("protocol: decode frame: %w", err)
	}
	return nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncatedFrame
		}
		return fmt.Errorf("protocol: read frame: %w", err)
	}
	return nil
}
