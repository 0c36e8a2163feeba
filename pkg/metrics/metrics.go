// Package metrics exports governor state and audit decisions to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pario-ai/leasegate/pkg/audit"
	"github.com/pario-ai/leasegate/pkg/models"
)

const namespace = "leasegate"

// Source is the live state a Metrics instance samples on scrape.
type Source interface {
	Active() int
	ReservedCents() int
	CentsPerDay() int
	LiveLeases() int
}

// Metrics owns a private registry.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

// New creates a registry with the audit event counter registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Governor decisions by event type and denial reason.",
		}, []string{"event_type", "reason"}),
	}
	m.registry.MustRegister(m.events)
	return m
}

// Observe registers gauges that read src at scrape time.
func (m *Metrics) Observe(src Source) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_leases",
			Help:      "Concurrency slots currently held.",
		}, func() float64 { return float64(src.Active()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reserved_cents",
			Help:      "Reserved plus settled spend for the current UTC day.",
		}, func() float64 { return float64(src.ReservedCents()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_budget_cents",
			Help:      "Configured daily spend cap.",
		}, func() float64 { return float64(src.CentsPerDay()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_leases",
			Help:      "Leases held in the store.",
		}, func() float64 { return float64(src.LiveLeases()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AuditWriter counts every event before passing it to next.
func (m *Metrics) AuditWriter(next audit.Writer) audit.Writer {
	if next == nil {
		next = audit.Nop{}
	}
	return &countingWriter{next: next, events: m.events}
}

type countingWriter struct {
	next   audit.Writer
	events *prometheus.CounterVec
}

func (w *countingWriter) Write(ctx context.Context, ev models.AuditEvent) error {
	w.events.WithLabelValues(ev.EventType, ev.Reason).Inc()
	return w.next.Write(ctx, ev)
}

// Server is a running /metrics listener.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and serves /metrics in the background.
func (m *Metrics) Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics serve failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "address", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
