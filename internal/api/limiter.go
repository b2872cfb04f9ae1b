package api

import (
	"sync"

	"salonflow/internal/config"

	"golang.org/x/time/rate"
)

// rateLimiter holds one token bucket per client key, created lazily on
// the first request from that client.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	rps   rate.Limit
	burst int
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}
	return &rateLimiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(cfg.RateLimit.RPS),
		burst:   burst,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *rateLimiter) Allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}
