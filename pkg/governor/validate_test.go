package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leasegate/internal/clock"
	"github.com/pario-ai/leasegate/pkg/budget"
	"github.com/pario-ai/leasegate/pkg/concurrency"
	"github.com/pario-ai/leasegate/pkg/lease"
	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/policy"
)

func TestNegativeEstimateRejected(t *testing.T) {
	f := newFixture(t, 2, 100, policy.Policy{})

	_, err := f.gov.Acquire(context.Background(), acquireReq(-1000, ""))
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "estimatedCostCents")
	assert.Zero(t, f.gov.Active())
	assert.Zero(t, f.gov.ReservedCents())
	assert.Empty(t, f.audit.events)

	resp := mustAcquire(t, f.gov, acquireReq(1000, ""))
	assert.False(t, resp.Granted)
	assert.Equal(t, models.ReasonDailyBudgetExceeded, resp.DeniedReason)
}

func TestNegativeReleaseRejected(t *testing.T) {
	f := newFixture(t, 1, 100, policy.Policy{})
	acq := mustAcquire(t, f.gov, acquireReq(40, ""))

	_, err := f.gov.Release(context.Background(), models.ReleaseRequest{LeaseID: acq.LeaseID, ActualCostCents: -40})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 1, f.gov.LiveLeases(), "rejected release must leave the lease held")
	assert.Equal(t, 40, f.gov.ReservedCents())

	_, err = f.gov.Release(context.Background(), models.ReleaseRequest{LeaseID: acq.LeaseID, Outcome: "exploded"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 1, f.gov.LiveLeases())
}

func TestActionTypeValidation(t *testing.T) {
	f := newFixture(t, 4, 100, policy.Policy{
		AllowedCapabilities: map[models.ActionType][]string{models.ActionChatCompletion: {"read"}},
	})

	req := acquireReq(1, "")
	req.RequestedCapabilities = []string{"shell_exec"}

	req.ActionType = "bogus"
	_, err := f.gov.Acquire(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req.ActionType = ""
	_, err = f.gov.Acquire(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req.ActionType = "CHAT_COMPLETION"
	resp := mustAcquire(t, f.gov, req)
	assert.False(t, resp.Granted)
	assert.Equal(t, models.ReasonCapabilityNotAllowed, resp.DeniedReason)
	assert.Equal(t, string(models.ActionChatCompletion), f.audit.last().ActionType)
}

func TestInjectedPoolsAreShared(t *testing.T) {
	c := clock.NewManual(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC))
	slots := concurrency.New(1)
	spend := budget.New(100, c)
	store := lease.NewStore()
	opts := Options{LeaseTTL: time.Minute}

	a := New(opts, nil, nil, WithClock(c), WithConcurrencyPool(slots), WithBudgetPool(spend), WithStore(store))
	b := New(opts, nil, nil, WithClock(c), WithConcurrencyPool(slots), WithBudgetPool(spend), WithStore(store))
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	acq := mustAcquire(t, a, acquireReq(60, "shared"))
	require.True(t, acq.Granted)
	assert.Equal(t, 100, a.CentsPerDay())

	replay := mustAcquire(t, b, acquireReq(60, "shared"))
	assert.Equal(t, acq.LeaseID, replay.LeaseID)

	denied := mustAcquire(t, b, acquireReq(10, ""))
	assert.Equal(t, models.ReasonConcurrencyLimitReached, denied.DeniedReason)

	rel := mustRelease(t, b, models.ReleaseRequest{LeaseID: acq.LeaseID, ActualCostCents: 70})
	assert.Equal(t, models.ReleaseRecorded, rel.Classification)
	assert.Equal(t, 70, a.ReservedCents())
	assert.Zero(t, a.Active())
}
