package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisNamespace = "idempotency"

// RedisStore keeps claims as JSON strings whose Redis TTL matches the claim lifetime.
type RedisStore struct {
	client goredis.Cmdable
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed store. Keys live under prefix:idempotency:.
func NewRedisStore(client goredis.Cmdable, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix != "" {
		prefix += ":"
	}
	return &RedisStore{client: client, prefix: prefix + redisNamespace + ":"}, nil
}

// Claim uses SETNX so exactly one concurrent request acquires the key.
func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, lease time.Duration) (Claim, error) {
	lease = positiveOr(lease, DefaultLease)
	payload, err := json.Marshal(entry{Fingerprint: fingerprint, ExpiresAt: now.Add(lease)})
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: encode claim: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		acquired, err := s.client.SetNX(ctx, s.key(key), payload, lease).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("idempotency: claim: %w", err)
		}
		if acquired {
			return Claim{State: ClaimAcquired}, nil
		}
		existing, found, err := s.load(ctx, key)
		if err != nil {
			return Claim{}, err
		}
		if found {
			return claimFor(existing, fingerprint)
		}
		// The holder expired between SETNX and GET.
	}
	return Claim{State: ClaimInFlight}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp SavedResponse, now time.Time, ttl time.Duration) error {
	existing, found, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if found && existing.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	ttl = positiveOr(ttl, DefaultTTL)
	payload, err := json.Marshal(entry{Fingerprint: fingerprint, Done: true, Response: resp, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("idempotency: encode response: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

// Abandon deletes the claim only while it still belongs to fingerprint.
func (s *RedisStore) Abandon(ctx context.Context, key, fingerprint string) error {
	existing, found, err := s.load(ctx, key)
	if err != nil || !found || existing.Fingerprint != fingerprint {
		return err
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: abandon: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, key string) (entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, false, fmt.Errorf("idempotency: decode: %w", err)
	}
	return e, true, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + storageKey(key)
}
