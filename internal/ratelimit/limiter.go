package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per tenant, enforcing each API key's own
// rate_limit_per_second (spec.md §3's Tenant entity, §5's "shared
// resources" concurrency note). Buckets are created lazily on first use
// and never evicted — tenant count is small relative to a process
// lifetime, so the map simply grows with the set of active tenants.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	burstMul int
}

// NewLimiter builds a Limiter. burst is expressed as a multiple of each
// tenant's per-second rate, giving a short allowance for bursty senders
// without abandoning the steady-state cap.
func NewLimiter(burstMultiplier int) *Limiter {
	if burstMultiplier <= 0 {
		burstMultiplier = 1
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		burstMul: burstMultiplier,
	}
}

// Allow reports whether apiKeyID may send one message right now, given
// its configured rate_limit_per_second.
func (l *Limiter) Allow(apiKeyID string, ratePerSecond float64) bool {
	return l.bucket(apiKeyID, ratePerSecond).Allow()
}

func (l *Limiter) bucket(apiKeyID string, ratePerSecond float64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[apiKeyID]
	if !ok {
		burst := int(ratePerSecond) * l.burstMul
		if burst < 1 {
			burst = 1
		}
		b = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
		l.buckets[apiKeyID] = b
	}
	return b
}
