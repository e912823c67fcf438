package common

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides thread-safe request pacing with dynamically
// adjustable limits. It bounds the load placed on downstream services by
// spacing out successive requests, while allowing the pacing interval to
// be adjusted at runtime once the service reports its own limit.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // Protects concurrent access to the limiter
}

// NewRateLimiter creates a RateLimiter with the specified requests per
// second (rps) and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until the rate limiter allows an event or the context is
// canceled. It returns an error if the context is canceled while waiting.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits dynamically adjusts the rate limiter's requests per second
// and burst size. This allows adapting to limits advertised by the server
// at runtime.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}

// SetInterval adjusts the limiter so that events are spaced at least the
// given interval apart. A non-positive interval removes the limit.
func (rl *RateLimiter) SetInterval(interval time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if interval <= 0 {
		rl.limiter.SetLimit(rate.Inf)
		return
	}
	rl.limiter.SetLimit(rate.Every(interval))
	rl.limiter.SetBurst(1)
}
