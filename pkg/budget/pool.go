// Package budget keeps the daily spend ledger that gates lease admission.
package budget

import (
	"sync"
	"time"

	"github.com/pario-ai/leasegate/internal/clock"
)

// MinRetryAfterMs is the smallest retry hint returned on denial.
const MinRetryAfterMs = 1000

// Pool reserves estimated spend against a daily cap in integer cents.
// The ledger resets lazily on the first access after UTC midnight.
type Pool struct {
	mu          sync.Mutex
	centsPerDay int
	reserved    int
	currentDay  time.Time
	clock       clock.Clock
}

// New creates a Pool with the given daily cap. A nil clock reads wall time.
func New(centsPerDay int, c clock.Clock) *Pool {
	c = clock.OrReal(c)
	return &Pool{
		centsPerDay: centsPerDay,
		currentDay:  dayStart(c.Now()),
		clock:       c,
	}
}

// TryReserve holds estimate cents if the running total stays within the cap.
// On denial the hint is the time remaining until the ledger resets. A
// negative estimate is never granted.
func (p *Pool) TryReserve(estimate int) (granted bool, retryAfterMs int) {
	if estimate < 0 {
		return false, 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.rollLocked()

	if p.reserved+estimate > p.centsPerDay {
		return false, retryAfter(now)
	}
	p.reserved += estimate
	return true, 0
}

// Settle replaces a reservation of estimate cents with the actual spend.
// Negative amounts count as zero.
func (p *Pool) Settle(estimate, actual int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollLocked()

	p.reserved = floor(p.reserved - floor(estimate))
	p.reserved += floor(actual)
}

// ReleaseReservation drops a reservation of estimate cents without recording
// spend. Negative amounts count as zero.
func (p *Pool) ReleaseReservation(estimate int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollLocked()

	p.reserved = floor(p.reserved - floor(estimate))
}

// ReservedCents returns today's reserved and settled spend.
func (p *Pool) ReservedCents() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollLocked()
	return p.reserved
}

// CentsPerDay returns the configured cap.
func (p *Pool) CentsPerDay() int {
	return p.centsPerDay
}

func (p *Pool) rollLocked() time.Time {
	now := p.clock.Now().UTC()
	if today := dayStart(now); !today.Equal(p.currentDay) {
		p.currentDay = today
		p.reserved = 0
	}
	return now
}

func retryAfter(now time.Time) int {
	next := dayStart(now).AddDate(0, 0, 1)
	ms := int(next.Sub(now).Milliseconds())
	if ms < MinRetryAfterMs {
		return MinRetryAfterMs
	}
	return ms
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
