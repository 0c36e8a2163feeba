// Package server exposes a governor over the framed LeaseGate protocol.
// Each connection carries exactly one command and one response.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/protocol"
)

// ErrUnknownCommand is returned for a command name the server does not serve.
var ErrUnknownCommand = errors.New("unknown_command")

// ErrInternal is returned when a handler panics while serving a command.
var ErrInternal = errors.New("internal_error")

// Handler is the admission authority behind the server.
type Handler interface {
	Acquire(ctx context.Context, req models.AcquireRequest) (models.AcquireResponse, error)
	Release(ctx context.Context, req models.ReleaseRequest) (models.ReleaseResponse, error)
}

// Options tune connection handling.
type Options struct {
	// ReadTimeout bounds a whole connection exchange. Zero disables it.
	ReadTimeout time.Duration
	// MaxFrameBytes caps an incoming frame. Zero selects the protocol default.
	MaxFrameBytes int
}

// Server accepts connections and dispatches commands to a Handler.
type Server struct {
	handler Handler
	opts    Options
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a Server. A nil logger uses slog.Default.
func New(h Handler, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: h,
		opts:    opts,
		logger:  logger.With("component", "server"),
	}
}

// ListenAndServe listens on network/address and serves until ctx is done.
// A stale Unix socket left at address by a previous run is removed first.
func (s *Server) ListenAndServe(ctx context.Context, network, address string) error {
	if network == "unix" {
		if err := removeStaleSocket(address); err != nil {
			return err
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", network, address, err)
	}
	s.logger.Info("leasegate listening", "network", network, "address", address)
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and waits
// for open connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ln.Close()
	}()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn reads one command from conn, answers it, and closes conn.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if s.opts.ReadTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.opts.ReadTimeout))
	}

	var resp protocol.CommandResponse
	var req protocol.CommandRequest
	if err := protocol.ReadFrame(conn, &req, s.opts.MaxFrameBytes); err != nil {
		s.logger.Warn("read command failed", "remote", remoteAddr(conn), "error", err)
		resp = protocol.Failure(err.Error())
	} else {
		resp = s.Dispatch(ctx, req)
	}

	if err := protocol.WriteFrame(conn, resp); err != nil {
		s.logger.Warn("write response failed", "remote", remoteAddr(conn), "error", err)
	}
}

// Dispatch executes one command envelope. Every failure is folded into a
// failure envelope.
func (s *Server) Dispatch(ctx context.Context, req protocol.CommandRequest) protocol.CommandResponse {
	payload, err := s.dispatch(ctx, req)
	if err != nil {
		s.logger.Warn("command failed", "command", req.Command, "error", err)
		return protocol.Failure(err.Error())
	}
	resp, err := protocol.Success(payload)
	if err != nil {
		s.logger.Warn("encode response failed", "command", req.Command, "error", err)
		return protocol.Failure(err.Error())
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req protocol.CommandRequest) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked", "command", req.Command, "panic", r)
			payload, err = nil, fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	switch req.Command {
	case protocol.CommandAcquire:
		var in models.AcquireRequest
		if err := protocol.DecodePayload(req.PayloadJSON, &in); err != nil {
			return nil, err
		}
		return s.handler.Acquire(ctx, in)
	case protocol.CommandRelease:
		var in models.ReleaseRequest
		if err := protocol.DecodePayload(req.PayloadJSON, &in); err != nil {
			return nil, err
		}
		return s.handler.Release(ctx, in)
	}
	return nil, ErrUnknownCommand
}

func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket: %w", err)
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("listen address %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
