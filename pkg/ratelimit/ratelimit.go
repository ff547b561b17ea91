package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket single-process token bucket with fractional refill.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	lastUsed   time.Time
}

func newTokenBucket(capacity int64, perSecond float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		perSecond:  perSecond,
		lastRefill: now,
		lastUsed:   now,
	}
}

func (tb *TokenBucket) take(n float64, now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.perSecond)
		tb.lastRefill = now
	}
	tb.lastUsed = now

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// RateLimiter keeps one bucket per key (client IP for the dev routes).
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	capacity  int64
	perSecond float64
	idleTTL   time.Duration
	now       func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRateLimiter allows capacity requests per window per key.
func NewRateLimiter(capacity int64, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		buckets:   make(map[string]*TokenBucket),
		capacity:  capacity,
		perSecond: float64(capacity) / window.Seconds(),
		idleTTL:   10 * time.Minute,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Allow reports whether one request for key fits in its bucket.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.AllowN(key, 1)
}

// AllowN reports whether n requests for key fit in its bucket.
func (rl *RateLimiter) AllowN(key string, n int64) bool {
	now := rl.now()

	rl.mu.Lock()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = newTokenBucket(rl.capacity, rl.perSecond, now)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.take(float64(n), now)
}

// StartCleanup evicts idle buckets until Stop is called.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stopChan:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// Done is closed once Stop has been called.
func (rl *RateLimiter) Done() <-chan struct{} {
	return rl.stopChan
}

func (rl *RateLimiter) cleanup() int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, bucket := range rl.buckets {
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastUsed) > rl.idleTTL
		bucket.mu.Unlock()

		if idle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Reset forgets the bucket for key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Size returns the number of tracked keys.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
