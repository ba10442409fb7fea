package app

import (
	"sync"

	"golang.org/x/time/rate"
)

// generationLimiter throttles document generation per user. Limiters are
// kept for the lifetime of the process; the per-user footprint is small.
type generationLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newGenerationLimiter(perMinute, burst int) *generationLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 1
	}
	return &generationLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (g *generationLimiter) Allow(userID string) bool {
	g.mu.Lock()
	limiter, ok := g.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(g.limit, g.burst)
		g.limiters[userID] = limiter
	}
	g.mu.Unlock()
	return limiter.Allow()
}
