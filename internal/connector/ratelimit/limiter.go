// Package ratelimit token-buckets outbound requests per (exchange, IP)
// pair, so a single collector process sharing one egress IP across
// several exchange connectors never lets one exchange's subscription
// storm burn through another's quota.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter owns one token bucket per key, created lazily on first use.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	rps      float64
	burst    int
}

func New(rps float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rps,
		burst:   burst,
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.buckets[key] = b
	return b
}

// Key builds the (exchange, IP) bucket identity.
func Key(exchange, ip string) string {
	return exchange + "|" + ip
}

// Allow reports whether a request for key may proceed immediately,
// without blocking or consuming a future slot.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

// SetLimit updates the rate applied to every existing and future bucket.
func (l *Limiter) SetLimit(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps, l.burst = rps, burst
	for _, b := range l.buckets {
		b.SetLimit(rate.Limit(rps))
		b.SetBurst(burst)
	}
}
