package governor

import (
	"context"
	"time"

	"github.com/pario-ai/leasegate/pkg/models"
)

// Start launches the background expiry sweep. Calling it more than once has
// no further effect.
func (g *Governor) Start() {
	g.startOnce.Do(func() {
		g.wg.Add(1)
		go g.sweepLoop()
	})
}

// Close stops the sweep and waits for an in-flight tick to finish.
func (g *Governor) Close() error {
	g.closeOnce.Do(func() {
		close(g.stop)
		g.wg.Wait()
	})
	return nil
}

func (g *Governor) sweepLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// Sweep reclaims every lease whose expiry has passed: its concurrency slot is
// freed and its budget reservation dropped without recording spend. It
// returns the number of leases expired.
func (g *Governor) Sweep() int {
	expired := g.leases.RemoveExpired(g.clock.Now().UTC())
	if len(expired) == 0 {
		return 0
	}

	ctx := context.Background()
	for _, l := range expired {
		g.concurrency.Release()
		g.budget.ReleaseReservation(l.Request.EstimatedCostCents)

		g.writeAudit(ctx, models.AuditEvent{
			EventType:          models.EventLeaseExpired,
			LeaseID:            l.LeaseID,
			ActorID:            l.Request.ActorID,
			WorkspaceID:        l.Request.WorkspaceID,
			ActionType:         string(l.Request.ActionType),
			ModelID:            l.Request.ModelID,
			EstimatedCostCents: l.Request.EstimatedCostCents,
			Decision:           "expired",
		})
	}
	g.logger.Debug("expired leases reclaimed", "count", len(expired))
	return len(expired)
}
