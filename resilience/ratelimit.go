package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiterConfig configures the token bucket.
type RateLimiterConfig struct {
	// Rate is the sustained number of permits per second.
	// Default: 5
	Rate float64

	// Burst is the bucket capacity: the number of permits that can be
	// consumed back to back after an idle period.
	// Default: 10
	Burst int
}

// RateLimiter is a token-bucket gate. One limiter guards one remote
// dependency and is shared by every caller of that dependency; all state is
// mutated under a single mutex and the bucket never goes negative.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter validates the configuration and creates a rate limiter
// starting at full capacity.
func NewRateLimiter(config RateLimiterConfig) (*RateLimiter, error) {
	if config.Rate == 0 {
		config.Rate = 5
	}
	if config.Burst == 0 {
		config.Burst = 10
	}

	if config.Rate < 0 {
		return nil, fmt.Errorf("resilience: Rate must be positive, got %g", config.Rate)
	}
	if config.Burst < 1 {
		return nil, fmt.Errorf("resilience: Burst must be >= 1, got %d", config.Burst)
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}, nil
}

// Allow consumes a permit if one is immediately available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Acquire blocks until a permit is available or the context's deadline would
// be exceeded by the wait, whichever comes first. It returns nil when a
// permit was consumed and ErrRateLimitTimeout when the caller's budget ran
// out (including cancellation while suspended). Waiters are not served in
// FIFO order; a waiter only ever consumes a token that has actually accrued.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.refillLocked(now)

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Time until a single token accrues.
		wait := time.Duration((1 - rl.tokens) / rl.config.Rate * float64(time.Second))
		rl.mu.Unlock()

		if deadline, ok := ctx.Deadline(); ok {
			if now.Add(wait).After(deadline) {
				return ErrRateLimitTimeout
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrRateLimitTimeout
		case <-timer.C:
			// Another waiter may have consumed the token that accrued;
			// loop and recompute under the lock.
		}
	}
}

// refillLocked adds tokens for the elapsed time, capped at capacity.
func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}
	rl.lastRefill = now

	rl.tokens += elapsed.Seconds() * rl.config.Rate
	if capacity := float64(rl.config.Burst); rl.tokens > capacity {
		rl.tokens = capacity
	}
}

// Tokens returns the number of permits currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked(time.Now())
	return rl.tokens
}

// Config returns the limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}
