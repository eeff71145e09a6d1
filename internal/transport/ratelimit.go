package transport

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterRegistry holds one token-bucket limiter per model ID, created
// lazily on first use. All limiters share the same rate configuration.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiterRegistry creates a registry. An rps of 0 disables limiting
// entirely. Burst defaults to 1 when limiting is enabled.
func NewLimiterRegistry(rps float64, burst int) *LimiterRegistry {
	if burst <= 0 {
		burst = 1
	}
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Wait blocks until the model's limiter grants a token or ctx is canceled.
// With limiting disabled it returns immediately.
func (r *LimiterRegistry) Wait(ctx context.Context, modelID string) error {
	if r.rps <= 0 {
		return nil
	}

	r.mu.Lock()
	limiter, ok := r.limiters[modelID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[modelID] = limiter
	}
	r.mu.Unlock()

	return limiter.Wait(ctx)
}
