// Package concurrency bounds the number of simultaneous in-flight leases.
package concurrency

import "sync"

// RetryAfterMs is the hint returned when the pool is full.
const RetryAfterMs = 500

// Pool is a fixed-capacity, non-blocking counting gate.
type Pool struct {
	mu       sync.Mutex
	capacity int
	active   int
}

// New creates a Pool admitting at most capacity concurrent holders.
// A negative capacity is treated as zero.
func New(capacity int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{capacity: capacity}
}

// TryAcquire takes a slot if one is free. When the pool is full it returns
// false with a constant retry hint and leaves the count untouched.
func (p *Pool) TryAcquire() (granted bool, retryAfterMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= p.capacity {
		return false, RetryAfterMs
	}
	p.active++
	return true, 0
}

// Release returns a slot. Releasing an empty pool is a no-op.
func (p *Pool) Release() {
	p.mu.Lock()
	if p.active > 0 {
		p.active--
	}
	p.mu.Unlock()
}

// Active returns the number of held slots.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Capacity returns the configured limit.
func (p *Pool) Capacity() int {
	return p.capacity
}
