// Package governor sequences policy, concurrency, budget, and lease storage
// into the acquire/release admission protocol.
package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/leasegate/internal/clock"
	"github.com/pario-ai/leasegate/pkg/audit"
	"github.com/pario-ai/leasegate/pkg/budget"
	"github.com/pario-ai/leasegate/pkg/concurrency"
	"github.com/pario-ai/leasegate/pkg/lease"
	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/policy"
	"github.com/pario-ai/leasegate/pkg/protocol"
)

const (
	recommendConcurrency = "retry after active leases complete"
	recommendBudget      = "switch model / reduce output tokens"
	recommendNotFound    = "lease missing or already expired"
	recommendContinue    = "continue"
)

// DefaultSweepInterval is how often expired leases are reclaimed.
const DefaultSweepInterval = time.Second

// Options are the immutable limits of a Governor.
type Options struct {
	MaxInFlight      int
	DailyBudgetCents int
	LeaseTTL         time.Duration
	SweepInterval    time.Duration
}

// Option customizes a Governor's collaborators.
type Option func(*Governor)

// WithClock sets the time source used for expiry and budget rollover.
func WithClock(c clock.Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithConcurrencyPool injects a concurrency pool instead of building one from Options.
func WithConcurrencyPool(p *concurrency.Pool) Option {
	return func(g *Governor) { g.concurrency = p }
}

// WithBudgetPool injects a budget pool instead of building one from Options.
func WithBudgetPool(p *budget.Pool) Option {
	return func(g *Governor) { g.budget = p }
}

// WithStore injects the lease store.
func WithStore(s *lease.Store) Option {
	return func(g *Governor) { g.leases = s }
}

// WithIDGenerator overrides lease id minting.
func WithIDGenerator(fn func() string) Option {
	return func(g *Governor) { g.newID = fn }
}

// Governor admits and reclaims leases. It is safe for concurrent use.
type Governor struct {
	opts        Options
	policy      policy.Engine
	audit       audit.Writer
	concurrency *concurrency.Pool
	budget      *budget.Pool
	leases      *lease.Store
	clock       clock.Clock
	logger      *slog.Logger
	newID       func() string

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New builds a Governor. A nil policy engine allows everything and a nil
// audit writer discards events.
func New(opts Options, pe policy.Engine, aw audit.Writer, options ...Option) *Governor {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if pe == nil {
		pe = policy.NewStatic(policy.Policy{})
	}
	if aw == nil {
		aw = audit.Nop{}
	}
	g := &Governor{
		opts:   opts,
		policy: pe,
		audit:  aw,
		stop:   make(chan struct{}),
	}
	for _, o := range options {
		o(g)
	}
	g.clock = clock.OrReal(g.clock)
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "governor")
	if g.concurrency == nil {
		g.concurrency = concurrency.New(opts.MaxInFlight)
	}
	if g.budget == nil {
		g.budget = budget.New(opts.DailyBudgetCents, g.clock)
	}
	if g.leases == nil {
		g.leases = lease.NewStore()
	}
	if g.newID == nil {
		g.newID = func() string { return uuid.NewString() }
	}
	return g
}

// Acquire decides whether the caller may make one model call. The returned
// error is non-nil only when ctx was already done or the request is invalid
// (ErrInvalidRequest); in both cases no state has changed.
func (g *Governor) Acquire(ctx context.Context, req models.AcquireRequest) (models.AcquireResponse, error) {
	if err := ctx.Err(); err != nil {
		return models.AcquireResponse{}, err
	}
	req, err := normalizeAcquire(req)
	if err != nil {
		return models.AcquireResponse{}, err
	}

	if existing, ok := g.leases.GetByIdempotency(req.IdempotencyKey); ok {
		return granted(existing, req.IdempotencyKey), nil
	}

	if decision := g.policy.Evaluate(req); !decision.Allowed {
		resp := denied(req, decision.DeniedReason, nil, decision.Recommendation)
		g.auditDenied(ctx, req, resp)
		return resp, nil
	}

	if ok, retry := g.concurrency.TryAcquire(); !ok {
		resp := denied(req, models.ReasonConcurrencyLimitReached, &retry, recommendConcurrency)
		g.auditDenied(ctx, req, resp)
		return resp, nil
	}

	if ok, retry := g.budget.TryReserve(req.EstimatedCostCents); !ok {
		g.concurrency.Release()
		resp := denied(req, models.ReasonDailyBudgetExceeded, &retry, recommendBudget)
		g.auditDenied(ctx, req, resp)
		return resp, nil
	}

	now := g.clock.Now().UTC()
	l := models.Lease{
		LeaseID:        g.newID(),
		IdempotencyKey: req.IdempotencyKey,
		Request:        req,
		AcquiredAtUTC:  now,
		ExpiresAtUTC:   now.Add(g.opts.LeaseTTL),
	}
	if existing, added := g.leases.AddUnique(l); !added {
		// A concurrent acquire with the same key won; hand back its lease.
		g.concurrency.Release()
		g.budget.ReleaseReservation(req.EstimatedCostCents)
		return granted(existing, req.IdempotencyKey), nil
	}

	g.writeAudit(ctx, models.AuditEvent{
		EventType:          models.EventLeaseAcquired,
		LeaseID:            l.LeaseID,
		ActorID:            req.ActorID,
		WorkspaceID:        req.WorkspaceID,
		ActionType:         string(req.ActionType),
		ModelID:            req.ModelID,
		EstimatedCostCents: req.EstimatedCostCents,
		Decision:           "granted",
	})
	return granted(l, req.IdempotencyKey), nil
}

// Release returns a lease's resources and records its actual cost. Errors
// follow the same rules as Acquire.
func (g *Governor) Release(ctx context.Context, req models.ReleaseRequest) (models.ReleaseResponse, error) {
	if err := ctx.Err(); err != nil {
		return models.ReleaseResponse{}, err
	}
	req, err := normalizeRelease(req)
	if err != nil {
		return models.ReleaseResponse{}, err
	}

	l, ok := g.leases.Remove(req.LeaseID)
	if !ok {
		return models.ReleaseResponse{
			Classification: models.ReleaseLeaseNotFound,
			Recommendation: recommendNotFound,
			IdempotencyKey: req.IdempotencyKey,
		}, nil
	}

	g.concurrency.Release()
	g.budget.Settle(l.Request.EstimatedCostCents, req.ActualCostCents)

	g.writeAudit(ctx, models.AuditEvent{
		EventType:          models.EventLeaseReleased,
		LeaseID:            l.LeaseID,
		ActorID:            l.Request.ActorID,
		WorkspaceID:        l.Request.WorkspaceID,
		ActionType:         string(l.Request.ActionType),
		ModelID:            l.Request.ModelID,
		EstimatedCostCents: l.Request.EstimatedCostCents,
		ActualCostCents:    req.ActualCostCents,
		Decision:           string(req.Outcome),
		Recommendation:     recommendContinue,
	})

	return models.ReleaseResponse{
		Classification: models.ReleaseRecorded,
		Recommendation: recommendContinue,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

// Active returns the number of held concurrency slots.
func (g *Governor) Active() int { return g.concurrency.Active() }

// ReservedCents returns today's reserved and settled spend.
func (g *Governor) ReservedCents() int { return g.budget.ReservedCents() }

// CentsPerDay returns the daily budget cap.
func (g *Governor) CentsPerDay() int { return g.budget.CentsPerDay() }

// LiveLeases returns the number of leases in the store.
func (g *Governor) LiveLeases() int { return g.leases.Len() }

// PolicyHash returns the hash of the active policy snapshot.
func (g *Governor) PolicyHash() string {
	if snap := g.policy.Snapshot(); snap != nil {
		return snap.Hash
	}
	return ""
}

func granted(l models.Lease, idemKey string) models.AcquireResponse {
	return models.AcquireResponse{
		Granted:        true,
		LeaseID:        l.LeaseID,
		ExpiresAtUTC:   l.ExpiresAtUTC,
		IdempotencyKey: idemKey,
	}
}

func denied(req models.AcquireRequest, reason string, retryAfterMs *int, recommendation string) models.AcquireResponse {
	return models.AcquireResponse{
		Granted:        false,
		DeniedReason:   reason,
		RetryAfterMs:   retryAfterMs,
		Recommendation: recommendation,
		IdempotencyKey: req.IdempotencyKey,
	}
}

func (g *Governor) auditDenied(ctx context.Context, req models.AcquireRequest, resp models.AcquireResponse) {
	g.writeAudit(ctx, models.AuditEvent{
		EventType:          models.EventLeaseDenied,
		ActorID:            req.ActorID,
		WorkspaceID:        req.WorkspaceID,
		ActionType:         string(req.ActionType),
		ModelID:            req.ModelID,
		EstimatedCostCents: req.EstimatedCostCents,
		Decision:           "denied",
		Reason:             resp.DeniedReason,
		Recommendation:     resp.Recommendation,
	})
}

// writeAudit stamps and emits ev. Failures are logged and otherwise ignored;
// the caller's cancellation does not abort the write.
func (g *Governor) writeAudit(ctx context.Context, ev models.AuditEvent) {
	ev.TimestampUTC = g.clock.Now().UTC()
	ev.ProtocolVersion = protocol.Version
	ev.PolicyHash = g.PolicyHash()
	if err := g.audit.Write(context.WithoutCancel(ctx), ev); err != nil {
		g.logger.Warn("audit write failed",
			"event_type", ev.EventType,
			"lease_id", ev.LeaseID,
			"error", err,
		)
	}
}
