package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leasegate/pkg/models"
)

type fakeSource struct{ active, reserved, budget, live int }

func (f fakeSource) Active() int        { return f.active }
func (f fakeSource) ReservedCents() int { return f.reserved }
func (f fakeSource) CentsPerDay() int   { return f.budget }
func (f fakeSource) LiveLeases() int    { return f.live }

type failingWriter struct{}

func (failingWriter) Write(context.Context, models.AuditEvent) error { return errors.New("boom") }

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestGauges(t *testing.T) {
	m := New()
	m.Observe(fakeSource{active: 2, reserved: 150, budget: 500, live: 3})

	body := scrape(t, m.Handler())
	assert.Contains(t, body, "leasegate_active_leases 2")
	assert.Contains(t, body, "leasegate_reserved_cents 150")
	assert.Contains(t, body, "leasegate_daily_budget_cents 500")
	assert.Contains(t, body, "leasegate_live_leases 3")
}

func TestAuditWriterCountsAndForwards(t *testing.T) {
	m := New()
	w := m.AuditWriter(failingWriter{})
	ctx := context.Background()

	err := w.Write(ctx, models.AuditEvent{EventType: models.EventLeaseDenied, Reason: models.ReasonDailyBudgetExceeded})
	assert.EqualError(t, err, "boom")
	_ = w.Write(ctx, models.AuditEvent{EventType: models.EventLeaseAcquired})
	_ = w.Write(ctx, models.AuditEvent{EventType: models.EventLeaseAcquired})

	body := scrape(t, m.Handler())
	assert.Contains(t, body, `leasegate_audit_events_total{event_type="lease_denied",reason="daily_budget_exceeded"} 1`)
	assert.Contains(t, body, `leasegate_audit_events_total{event_type="lease_acquired",reason=""} 2`)
}

func TestStartServesMetrics(t *testing.T) {
	m := New()
	m.Observe(fakeSource{active: 1})
	srv, err := m.Start("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "leasegate_active_leases 1")
}
