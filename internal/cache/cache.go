// Package cache stores mint-eligibility answers in memory or memcached.
package cache

import (
	"context"
	"sync"
	"time"
)

// Record is a cached mint-eligibility answer.
type Record struct {
	CanMint   bool      `json:"canMint"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Store defines the interface for eligibility record caching implementations.
// Get returns the record if present and not expired, Set stores it with TTL.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Set(ctx context.Context, key string, value Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// InMemoryStore implements Store using a mutex-guarded map with TTL-based expiration.
// Expired entries are removed on access or by ClearExpired.
type InMemoryStore struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]entry
}

type entry struct {
	value     Record
	expiresAt time.Time
}

// NewInMemoryStore creates an in-memory store. now defaults to time.Now when nil.
func NewInMemoryStore(now func() time.Time) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{now: now, data: make(map[string]entry)}
}

// Get returns (record, true, nil) on hit and (zero, false, nil) on miss or expiration.
func (s *InMemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return Record{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return Record{}, false, nil
	}
	return e.value, true, nil
}

// Set replaces any existing record for key.
func (s *InMemoryStore) Set(_ context.Context, key string, value Record, ttl time.Duration) error {
	s.mu.Lock()
	s.data[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// ClearExpired sweeps expired entries and returns how many were removed.
func (s *InMemoryStore) ClearExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	s.data = make(map[string]entry)
	s.mu.Unlock()
}
