package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bounceparty/api/internal/platform/config"
	"github.com/bounceparty/api/internal/repositories"
)

// NewClient builds a go-redis client from configuration. It does not dial; use Ping to probe.
func NewClient(cfg config.RedisConfig) *goredis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return goredis.NewClient(&goredis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
}

// Store implements repositories.KeyValueStore on Redis strings.
type Store struct {
	client goredis.Cmdable
	prefix string
}

var _ repositories.KeyValueStore = (*Store)(nil)

// NewStore namespaces every key under prefix.
func NewStore(client goredis.Cmdable, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis store: client is required")
	}
	return &Store{client: client, prefix: strings.TrimSuffix(strings.TrimSpace(prefix), ":")}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, wrapError("redis.get", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return wrapError("redis.set", s.client.Set(ctx, s.key(key), value, ttl).Err())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return wrapError("redis.del", s.client.Del(ctx, s.key(key)).Err())
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return wrapError("redis.ping", s.client.Ping(ctx).Err())
}

func (s *Store) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// DistanceCache stores resolved driving distances as decimal strings.
type DistanceCache struct {
	store *Store
}

// NewDistanceCache wraps a Store for the distance resolver.
func NewDistanceCache(store *Store) (*DistanceCache, error) {
	if store == nil {
		return nil, errors.New("redis distance cache: store is required")
	}
	return &DistanceCache{store: store}, nil
}

func (c *DistanceCache) GetDistance(ctx context.Context, key string) (float64, bool, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if repositories.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	miles, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis distance cache: decode %q: %w", key, err)
	}
	return miles, true, nil
}

func (c *DistanceCache) SetDistance(ctx context.Context, key string, miles float64, ttl time.Duration) error {
	return c.store.Set(ctx, key, []byte(strconv.FormatFloat(miles, 'f', -1, 64)), ttl)
}

func wrapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, goredis.Nil):
		return repositories.NewStoreError(op, repositories.StoreErrorNotFound, err)
	case errors.Is(err, goredis.TxFailedErr):
		return repositories.NewStoreError(op, repositories.StoreErrorConflict, err)
	default:
		return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, err)
	}
}
