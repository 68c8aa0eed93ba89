package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const (
	// DefaultTTL is how long a completed response stays replayable.
	DefaultTTL = 24 * time.Hour
	// DefaultLease bounds how long an unfinished claim blocks retries of the same key.
	DefaultLease = 2 * time.Minute
)

// ClaimState is the outcome of claiming an idempotency key.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must run the handler.
	ClaimAcquired ClaimState = iota
	// ClaimReplay means an earlier request finished and its response should be replayed.
	ClaimReplay
	// ClaimInFlight means an earlier request holds the key and has not finished.
	ClaimInFlight
)

// Claim reports the state of a key and, for replays, the saved response.
type Claim struct {
	State ClaimState
	Saved SavedResponse
}

// SavedResponse is the replayable part of a handler response. Only the headers a JSON API
// client needs on replay are kept.
type SavedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Location    string `json:"location,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store persists idempotency claims and completed responses.
type Store interface {
	// Claim takes the key for lease, or reports what holds it.
	Claim(ctx context.Context, key, fingerprint string, now time.Time, lease time.Duration) (Claim, error)
	// Complete stores the response and keeps it for ttl.
	Complete(ctx context.Context, key, fingerprint string, resp SavedResponse, now time.Time, ttl time.Duration) error
	// Abandon frees a claim so the client may retry.
	Abandon(ctx context.Context, key, fingerprint string) error
}

// ErrKeyReused is returned when a key is presented again with a different request.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

// entry is the stored form shared by every Store implementation.
type entry struct {
	Fingerprint string        `json:"fingerprint"`
	Done        bool          `json:"done"`
	Response    SavedResponse `json:"response"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// claimFor maps an existing live entry onto the claim a new request observes.
func claimFor(existing entry, fingerprint string) (Claim, error) {
	if existing.Fingerprint != fingerprint {
		return Claim{}, ErrKeyReused
	}
	if existing.Done {
		return Claim{State: ClaimReplay, Saved: existing.Response}, nil
	}
	return Claim{State: ClaimInFlight}, nil
}

// storageKey hashes the scoped key so client input never lands verbatim in a storage key.
func storageKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
