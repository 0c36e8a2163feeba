package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leasegate/pkg/models"
	"github.com/pario-ai/leasegate/pkg/policy"
)

func TestSweepReclaimsExpiredLease(t *testing.T) {
	f := newFixture(t, 1, 100, policy.Policy{})
	acq := mustAcquire(t, f.gov, acquireReq(40, "k"))
	require.True(t, acq.Granted)

	f.clock.Advance(19 * time.Second)
	assert.Zero(t, f.gov.Sweep())
	assert.Equal(t, 1, f.gov.Active())

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.gov.Sweep())
	assert.Zero(t, f.gov.Active())
	assert.Zero(t, f.gov.ReservedCents(), "expired reservations are reversed, not settled")
	assert.Zero(t, f.gov.LiveLeases())

	ev := f.audit.last()
	assert.Equal(t, models.EventLeaseExpired, ev.EventType)
	assert.Equal(t, acq.LeaseID, ev.LeaseID)
	assert.Equal(t, "expired", ev.Decision)

	rel := mustRelease(t, f.gov, models.ReleaseRequest{LeaseID: acq.LeaseID, ActualCostCents: 40})
	assert.Equal(t, models.ReleaseLeaseNotFound, rel.Classification)
	assert.Zero(t, f.gov.ReservedCents())

	// The key no longer replays once its lease expired.
	next := mustAcquire(t, f.gov, acquireReq(40, "k"))
	require.True(t, next.Granted)
	assert.NotEqual(t, acq.LeaseID, next.LeaseID)
}

func TestSweepOnlyTouchesExpired(t *testing.T) {
	f := newFixture(t, 4, 100, policy.Policy{})
	require.True(t, mustAcquire(t, f.gov, acquireReq(10, "")).Granted)
	f.clock.Advance(10 * time.Second)
	require.True(t, mustAcquire(t, f.gov, acquireReq(20, "")).Granted)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, f.gov.Sweep())
	assert.Equal(t, 1, f.gov.Active())
	assert.Equal(t, 20, f.gov.ReservedCents())
}

func TestStartSweepsInBackground(t *testing.T) {
	f := newFixture(t, 1, 100, policy.Policy{})
	f.gov.opts.SweepInterval = 5 * time.Millisecond
	require.True(t, mustAcquire(t, f.gov, acquireReq(10, "")).Granted)
	f.clock.Advance(time.Minute)

	f.gov.Start()
	f.gov.Start()
	require.Eventually(t, func() bool { return f.gov.Active() == 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.gov.Close())
	require.NoError(t, f.gov.Close())
}

func TestCloseWithoutStart(t *testing.T) {
	f := newFixture(t, 1, 1, policy.Policy{})
	assert.NoError(t, f.gov.Close())
}
