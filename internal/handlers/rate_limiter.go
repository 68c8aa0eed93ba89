package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow(key string) bool
}

// callerLimiter hands each caller key its own token bucket refilled at limit per window.
type callerLimiter struct {
	every rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	callers map[string]*callerBucket
	swept   time.Time
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCallerLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &callerLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    window,
		clock:   clock,
		callers: make(map[string]*callerBucket),
	}
}

func (l *callerLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictIdleLocked(now)
	bucket, ok := l.callers[key]
	if !ok {
		bucket = &callerBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.callers[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// evictIdleLocked drops buckets untouched for a full window; they would be full again anyway.
func (l *callerLimiter) evictIdleLocked(now time.Time) {
	if now.Sub(l.swept) < l.idle {
		return
	}
	l.swept = now
	for key, bucket := range l.callers {
		if now.Sub(bucket.lastSeen) >= l.idle {
			delete(l.callers, key)
		}
	}
}
