package resilience

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 60s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier. Must be > 1.
	// Default: 2.0
	Multiplier float64

	// JitterFraction perturbs each delay by a uniformly random factor in
	// [-JitterFraction, +JitterFraction] so concurrent callers do not retry
	// in lockstep. Must be in [0, 1]. Zero disables jitter; the service
	// config defaults it to 0.25.
	JitterFraction float64
}

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one. Policies are immutable and safe for concurrent
// use.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy validates the configuration and creates a retry policy.
// Zero fields take their defaults; explicitly invalid values are
// construction-time errors.
func NewRetryPolicy(config RetryConfig) (*RetryPolicy, error) {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}

	if config.MaxAttempts < 1 {
		return nil, fmt.Errorf("resilience: MaxAttempts must be >= 1, got %d", config.MaxAttempts)
	}
	if config.BaseDelay < 0 {
		return nil, fmt.Errorf("resilience: BaseDelay must not be negative, got %v", config.BaseDelay)
	}
	if config.MaxDelay < config.BaseDelay {
		return nil, fmt.Errorf("resilience: MaxDelay %v is below BaseDelay %v", config.MaxDelay, config.BaseDelay)
	}
	if config.Multiplier <= 1 {
		return nil, fmt.Errorf("resilience: Multiplier must be > 1, got %g", config.Multiplier)
	}
	if config.JitterFraction < 0 || config.JitterFraction > 1 {
		return nil, fmt.Errorf("resilience: JitterFraction must be in [0, 1], got %g", config.JitterFraction)
	}

	return &RetryPolicy{config: config}, nil
}

// ShouldRetry reports whether another attempt follows the given one.
// attempt is 1-based; only retryable failures below the attempt budget
// are retried.
func (p *RetryPolicy) ShouldRetry(attempt int, class Classification) bool {
	return class == Retryable && attempt < p.config.MaxAttempts
}

// NextDelay returns the backoff delay after the given 1-based attempt:
// min(MaxDelay, BaseDelay * Multiplier^(attempt-1)), perturbed by jitter
// and floored at zero.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	backoff := float64(p.config.BaseDelay) * math.Pow(p.config.Multiplier, float64(attempt-1))
	if capped := float64(p.config.MaxDelay); backoff > capped {
		backoff = capped
	}

	if f := p.config.JitterFraction; f > 0 {
		// Uniform in [-f, +f].
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		backoff *= 1 + f*(2*rand.Float64()-1)
	}
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// MaxAttempts returns the attempt budget.
func (p *RetryPolicy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// Config returns the policy configuration.
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}
