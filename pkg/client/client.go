// Package client talks to a LeaseGate governor over its framed socket protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/protocol"
)

// ErrCommandFailed wraps a failure envelope returned by the server.
var ErrCommandFailed = errors.New("leasegate: command failed")

// DefaultTimeout bounds one exchange when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

// Client dials a new connection for every command.
type Client struct {
	network       string
	address       string
	timeout       time.Duration
	maxFrameBytes int
	dialer        net.Dialer
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-command timeout used when ctx has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxFrameBytes caps the response frame size.
func WithMaxFrameBytes(n int) Option {
	return func(c *Client) { c.maxFrameBytes = n }
}

// New returns a Client for the governor at network/address.
func New(network, address string, opts ...Option) *Client {
	c := &Client{
		network: network,
		address: address,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Acquire asks the governor for a lease.
func (c *Client) Acquire(ctx context.Context, req models.AcquireRequest) (models.AcquireResponse, error) {
	var resp models.AcquireResponse
	err := c.Do(ctx, protocol.CommandAcquire, req, &resp)
	return resp, err
}

// Release returns a lease to the governor.
func (c *Client) Release(ctx context.Context, req models.ReleaseRequest) (models.ReleaseResponse, error) {
	var resp models.ReleaseResponse
	err := c.Do(ctx, protocol.CommandRelease, req, &resp)
	return resp, err
}

// Do sends one command and decodes a successful response payload into out.
func (c *Client) Do(ctx context.Context, command string, payload, out any) error {
	env, err := protocol.NewCommand(command, payload)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return fmt.Errorf("dial %s %s: %w", c.network, c.address, err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := protocol.WriteFrame(conn, env); err != nil {
		return err
	}
	var resp protocol.CommandResponse
	if err := protocol.ReadFrame(conn, &resp, c.maxFrameBytes); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrCommandFailed, resp.Error)
	}
	return protocol.DecodePayload(resp.PayloadJSON, out)
}
