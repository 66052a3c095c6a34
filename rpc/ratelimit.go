package rpc

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultRatePerSecond = 25.0
	defaultRateBurst     = 50
)

// requestLimiter buckets mutating requests per client source. Queries are not
// limited; they never touch the dirty buffer.
type requestLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newRequestLimiter(perSecond float64, burst int) *requestLimiter {
	if perSecond <= 0 {
		perSecond = defaultRatePerSecond
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}
	return &requestLimiter{
		visitors: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *requestLimiter) allow(source string) bool {
	if source == "" {
		source = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.visitors[source]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.visitors[source] = limiter
	}
	return limiter.Allow()
}
