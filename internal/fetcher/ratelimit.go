package fetcher

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Per-host limits for the government dataset mirrors. The DOL hosts
// throttle aggressively during the annual refresh window, so stay
// well under their published ceilings.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"askebsa.dol.gov": rate.NewLimiter(10, 10),
		"www.dol.gov":     rate.NewLimiter(10, 10),
		"efast.dol.gov":   rate.NewLimiter(5, 5),
	}
}

// DefaultAdaptiveLimiters returns self-tuning limiters for the same hosts.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"askebsa.dol.gov": NewAdaptiveLimiter(10, 10),
		"www.dol.gov":     NewAdaptiveLimiter(10, 10),
		"efast.dol.gov":   NewAdaptiveLimiter(5, 5),
	}
}

// AdaptiveLimiter is a rate.Limiter whose rate drifts with observed
// server behavior: each success nudges it up 20% (capped at twice the
// starting rate), each 429 halves it (floored at a quarter of the
// starting rate).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	ceiling rate.Limit
	floor   rate.Limit
}

func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		current: initial,
		ceiling: initial * 2,
		floor:   initial / 4,
	}
}

// Wait blocks until the limiter grants a token or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess nudges the rate upward after a clean response.
func (a *AdaptiveLimiter) OnSuccess() {
	a.adjust(1.2)
}

// OnRateLimit backs the rate off after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	next := a.adjust(0.5)
	zap.L().Warn("throttled by host, lowering request rate",
		zap.Float64("requests_per_sec", float64(next)),
	)
}

func (a *AdaptiveLimiter) adjust(factor rate.Limit) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.current * factor
	if next > a.ceiling {
		next = a.ceiling
	}
	if next < a.floor {
		next = a.floor
	}
	a.current = next
	a.limiter.SetLimit(next)
	return next
}

// Limit reports the current requests-per-second rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
