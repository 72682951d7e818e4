package inmem

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"parss/internal/api"
)

const staleThreshold = 10 * time.Minute

// RateLimiter keeps one token bucket per key, e.g. per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter refilling perSecond tokens per second up to
// burst. clock is injectable for deterministic tests.
func NewRateLimiter(perSecond float64, burst int, clock func() time.Time) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     clock,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token from key's bucket. A denial carries the whole seconds
// until the next token.
func (rl *RateLimiter) Allow(key string) api.RateLimitResult {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return api.RateLimitResult{Allowed: true}
	}

	deficit := 1 - b.limiter.TokensAt(now)
	retryAfter := 1
	if rl.limit > 0 {
		retryAfter = max(int(math.Ceil(deficit/float64(rl.limit))), 1)
	}
	return api.RateLimitResult{RetryAfter: retryAfter}
}

// Cleanup drops buckets idle for longer than ten minutes.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > staleThreshold {
			delete(rl.buckets, key)
		}
	}
}

// BucketCount returns the number of tracked keys.
func (rl *RateLimiter) BucketCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// RunCleanup prunes stale buckets every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}
