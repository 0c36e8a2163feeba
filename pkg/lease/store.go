// Package lease holds the set of active leases.
package lease

import (
	"sync"
	"time"

	"github.com/pario-ai/leasegate/pkg/models"
)

// Store indexes active leases by lease id and by idempotency key.
// A single mutex guards both indexes so every operation is atomic with
// respect to the others.
type Store struct {
	mu          sync.Mutex
	byID        map[string]models.Lease
	idByIdemKey map[string]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		byID:        make(map[string]models.Lease),
		idByIdemKey: make(map[string]string),
	}
}

// Add inserts l, replacing any previous idempotency mapping for its key.
func (s *Store) Add(l models.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(l)
}

// AddUnique inserts l unless its non-empty idempotency key already maps to a
// live lease, in which case that lease is returned and nothing is stored.
func (s *Store) AddUnique(l models.Lease) (existing models.Lease, added bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.getByIdemLocked(l.IdempotencyKey); ok {
		return cur, false
	}
	s.addLocked(l)
	return l, true
}

// GetByIdempotency returns the live lease registered under key.
func (s *Store) GetByIdempotency(key string) (models.Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getByIdemLocked(key)
}

// Get returns the live lease with the given id.
func (s *Store) Get(leaseID string) (models.Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[leaseID]
	return l, ok
}

// Remove deletes the lease from both indexes and returns it.
func (s *Store) Remove(leaseID string) (models.Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[leaseID]
	if !ok {
		return models.Lease{}, false
	}
	s.removeLocked(l)
	return l, true
}

// RemoveExpired extracts every lease whose expiry is at or before now.
func (s *Store) RemoveExpired(now time.Time) []models.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []models.Lease
	for _, l := range s.byID {
		if !l.ExpiresAtUTC.After(now) {
			expired = append(expired, l)
		}
	}
	for _, l := range expired {
		s.removeLocked(l)
	}
	return expired
}

// Len returns the number of live leases.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) addLocked(l models.Lease) {
	s.byID[l.LeaseID] = l
	if l.IdempotencyKey != "" {
		s.idByIdemKey[l.IdempotencyKey] = l.LeaseID
	}
}

func (s *Store) getByIdemLocked(key string) (models.Lease, bool) {
	if key == "" {
		return models.Lease{}, false
	}
	id, ok := s.idByIdemKey[key]
	if !ok {
		return models.Lease{}, false
	}
	l, ok := s.byID[id]
	return l, ok
}

// removeLocked only drops the idempotency mapping if it still points at l,
// so a newer lease registered under the same key keeps its entry.
func (s *Store) removeLocked(l models.Lease) {
	delete(s.byID, l.LeaseID)
	if l.IdempotencyKey != "" && s.idByIdemKey[l.IdempotencyKey] == l.LeaseID {
		delete(s.idByIdemKey, l.IdempotencyKey)
	}
}
