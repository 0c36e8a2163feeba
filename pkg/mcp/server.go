// Package mcp exposes lease acquire/release to agent hosts as Model Context
// Protocol tools over stdio (newline-delimited JSON-RPC 2.0).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pario-ai/leasegate/pkg/models"
)

// Leaser performs the lease protocol. Both the governor and the socket client
// satisfy it.
type Leaser interface {
	Acquire(ctx context.Context, req models.AcquireRequest) (models.AcquireResponse, error)
	Release(ctx context.Context, req models.ReleaseRequest) (models.ReleaseResponse, error)
}

// StatusSource reports live governor state.
type StatusSource interface {
	Active() int
	ReservedCents() int
	CentsPerDay() int
	LiveLeases() int
	PolicyHash() string
}

// AuditSearcher queries persisted audit events.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEvent, error)
}

// Server is a minimal MCP server.
type Server struct {
	leaser  Leaser
	status  StatusSource
	auditor AuditSearcher
	version string
	logger  *slog.Logger
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithStatus enables the status tool.
func WithStatus(s StatusSource) Option {
	return func(srv *Server) { srv.status = s }
}

// WithAuditSearch enables the audit search tool.
func WithAuditSearch(a AuditSearcher) Option {
	return func(srv *Server) { srv.auditor = a }
}

// WithLogger sets the logger. Logs must not go to the stdout transport.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New creates a Server that forwards lease tools to l.
func New(l Leaser, version string, opts ...Option) *Server {
	s := &Server{leaser: l, version: version}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run reads requests from r line by line and writes responses to w until r
// is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, replyError(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return reply(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "leasegate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return reply(req.ID, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return replyError(req.ID, CodeInvalidParams, "invalid params")
		}
		return reply(req.ID, s.call(ctx, params))
	}
	return replyError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("mcp marshal failed", "error", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Warn("mcp write failed", "error", err)
	}
}
