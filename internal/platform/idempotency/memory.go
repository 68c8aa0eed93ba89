package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process. It backs local runs without Redis and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, lease time.Duration) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := storageKey(key)
	if existing, ok := s.entries[id]; ok && !existing.expired(now) {
		return claimFor(existing, fingerprint)
	}
	s.sweepLocked(now)
	s.entries[id] = entry{Fingerprint: fingerprint, ExpiresAt: now.Add(positiveOr(lease, DefaultLease))}
	return Claim{State: ClaimAcquired}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp SavedResponse, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := storageKey(key)
	if existing, ok := s.entries[id]; ok && !existing.expired(now) && existing.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	resp.Body = append([]byte(nil), resp.Body...)
	s.entries[id] = entry{
		Fingerprint: fingerprint,
		Done:        true,
		Response:    resp,
		ExpiresAt:   now.Add(positiveOr(ttl, DefaultTTL)),
	}
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := storageKey(key)
	if existing, ok := s.entries[id]; ok && existing.Fingerprint == fingerprint {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, id)
		}
	}
}
