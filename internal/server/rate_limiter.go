package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window in-process limiter for low-volume
// sensitive endpoints. Windows reset lazily on the next call.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*rateLimiterBucket
}

type rateLimiterBucket struct {
	count    int
	windowAt time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateLimiterBucket),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[key]
	if !ok || now.Sub(bucket.windowAt) >= r.window {
		r.buckets[key] = &rateLimiterBucket{count: 1, windowAt: now}
		return true
	}

	if bucket.count >= r.limit {
		return false
	}
	bucket.count++
	return true
}
