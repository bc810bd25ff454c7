package resilience

import (
	"context"
	"time"
)

// Attempt records one invocation of the remote operation.
type Attempt struct {
	// Number is the 1-based attempt ordinal within a single logical call.
	Number int
	// Start is when the operation was invoked.
	Start time.Time
	// Duration is how long the invocation took.
	Duration time.Duration
	// Err is the failure returned by the invocation, nil on success.
	Err error
	// Class is the failure classification; meaningful only when Err is
	// non-nil.
	Class Classification
}

// Executor wraps a remote operation with the circuit breaker gate, the rate
// limiter gate, and the retry loop, in that order per attempt. One executor
// serves all concurrent callers of the dependency it protects; the only
// mutable state it touches is the shared breaker and limiter.
type Executor struct {
	breaker   *CircuitBreaker
	limiter   *RateLimiter
	retry     *RetryPolicy
	classify  func(error) Classification
	onAttempt func(Attempt)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCircuitBreaker guards every attempt with the given breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

// WithRateLimiter makes every attempt acquire a permit from the given
// limiter before the operation is invoked.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.limiter = rl }
}

// WithRetryPolicy retries retryable failures per the given policy.
func WithRetryPolicy(p *RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.retry = p }
}

// WithClassifier replaces the default failure classifier.
func WithClassifier(classify func(error) Classification) ExecutorOption {
	return func(e *Executor) { e.classify = classify }
}

// WithAttemptHook calls fn after every completed invocation of the remote
// operation. Used for metrics; fn must not block.
func WithAttemptHook(fn func(Attempt)) ExecutorOption {
	return func(e *Executor) { e.onAttempt = fn }
}

// NewExecutor composes the configured guards. An executor with no options
// invokes operations directly with a single attempt.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{classify: Classify}
	for _, opt := range opts {
		opt(e)
	}
	if e.classify == nil {
		e.classify = Classify
	}
	return e
}

// Do runs op through the executor and returns its value.
//
// Per attempt: the breaker gate is checked first (an open circuit rejects
// the call without consuming a rate-limit permit), then a permit is acquired
// with the remaining context budget, then op is invoked outside any lock.
// On failure the error is classified and reported to the breaker; retryable
// failures below the attempt budget sleep the backoff delay and loop,
// everything else returns. The context deadline bounds all suspension:
// limiter waits and backoff sleeps both count against it.
//
// The returned error is nil, ErrCircuitOpen, ErrRateLimitTimeout, or a
// *FatalError wrapping the last failure.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		if e.breaker != nil {
			if err := e.breaker.Allow(); err != nil {
				return zero, err
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Acquire(ctx); err != nil {
				if e.breaker != nil {
					// The operation never ran; admission control must not
					// count against the dependency.
					e.breaker.Release()
				}
				return zero, err
			}
		}

		start := time.Now()
		value, err := op(ctx)
		elapsed := time.Since(start)

		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			if e.onAttempt != nil {
				e.onAttempt(Attempt{Number: attempt, Start: start, Duration: elapsed})
			}
			return value, nil
		}

		class := e.classify(err)
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		if e.onAttempt != nil {
			e.onAttempt(Attempt{Number: attempt, Start: start, Duration: elapsed, Err: err, Class: class})
		}

		if class == Fatal {
			return zero, &FatalError{Err: err, Attempts: attempt}
		}
		if e.retry == nil || !e.retry.ShouldRetry(attempt, class) {
			return zero, &FatalError{Err: err, Exhausted: true, Attempts: attempt}
		}

		delay := e.retry.NextDelay(attempt)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			// The caller's budget ran out mid-backoff; surface the last
			// remote failure rather than waiting further.
			return zero, &FatalError{Err: err, Exhausted: true, Attempts: attempt}
		}
	}
}

// Execute runs a value-less operation through the executor.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// sleep waits for d, returning early if ctx is done. The wait suspends only
// the calling goroutine.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
