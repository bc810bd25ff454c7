package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(t *testing.T, maxAttempts int) *RetryPolicy {
	t.Helper()
	p, err := NewRetryPolicy(RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}
	return p
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	e := NewExecutor(WithRetryPolicy(fastRetry(t, 3)))

	calls := 0
	got, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		return "folder-id", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "folder-id" {
		t.Errorf("Do() = %q, want %q", got, "folder-id")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetryableFailuresThenSuccess(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		e := NewExecutor(WithRetryPolicy(fastRetry(t, 3)))

		calls := 0
		got, err := Do(context.Background(), e, func(ctx context.Context) (int, error) {
			calls++
			if calls < n {
				return 0, &statusErr{code: 503, msg: "unavailable"}
			}
			return 42, nil
		})

		if err != nil {
			t.Fatalf("n=%d: Do() error = %v", n, err)
		}
		if got != 42 {
			t.Errorf("n=%d: Do() = %d, want 42", n, got)
		}
		if calls != n {
			t.Errorf("n=%d: calls = %d, want %d", n, calls, n)
		}
	}
}

func TestDo_FatalFailureStopsImmediately(t *testing.T) {
	e := NewExecutor(WithRetryPolicy(fastRetry(t, 5)))

	cause := errors.New("invalid folder path")
	calls := 0

	start := time.Now()
	_, err := Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, cause
	})
	elapsed := time.Since(start)

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Do() error = %v, want *FatalError", err)
	}
	if fatal.Exhausted {
		t.Error("Exhausted = true, want false for a fatal classification")
	}
	if !errors.Is(err, cause) {
		t.Error("FatalError does not wrap the cause")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("fatal failure took %v, want no backoff delay", elapsed)
	}
}

func TestDo_RetryableExhaustionSurfacesLastFailure(t *testing.T) {
	e := NewExecutor(WithRetryPolicy(fastRetry(t, 3)))

	last := &statusErr{code: 502, msg: "bad gateway #3"}
	calls := 0
	_, err := Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusErr{code: 502, msg: "bad gateway"}
		}
		return 0, last
	})

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Do() error = %v, want *FatalError", err)
	}
	if !fatal.Exhausted {
		t.Error("Exhausted = false, want true")
	}
	if fatal.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", fatal.Attempts)
	}
	if !errors.Is(err, last) {
		t.Error("FatalError does not wrap the final attempt's failure")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (never exceeds MaxAttempts)", calls)
	}
}

func TestDo_BackoffDelays(t *testing.T) {
	p, err := NewRetryPolicy(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
	})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}

	var starts []time.Time
	e := NewExecutor(
		WithRetryPolicy(p),
		WithAttemptHook(func(a Attempt) { starts = append(starts, a.Start) }),
	)

	calls := 0
	_, err = Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusErr{code: 503, msg: "unavailable"}
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(starts) != 3 {
		t.Fatalf("attempts recorded = %d, want 3", len(starts))
	}

	first := starts[1].Sub(starts[0])
	second := starts[2].Sub(starts[1])

	if first < 90*time.Millisecond || first > 200*time.Millisecond {
		t.Errorf("delay before attempt 2 = %v, want ~100ms", first)
	}
	if second < 180*time.Millisecond || second > 350*time.Millisecond {
		t.Errorf("delay before attempt 3 = %v, want ~200ms", second)
	}
}

func TestDo_CircuitOpenRejectsWithoutInvoking(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute})
	if err != nil {
		t.Fatalf("NewCircuitBreaker() error = %v", err)
	}
	cb.RecordFailure()

	e := NewExecutor(WithCircuitBreaker(cb), WithRetryPolicy(fastRetry(t, 3)))

	calls := 0
	_, err = Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	if err != ErrCircuitOpen {
		t.Errorf("Do() error = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if Outcome(err) != OutcomeCircuitOpen {
		t.Errorf("Outcome = %v, want circuit_open", Outcome(err))
	}
}

func TestDo_BreakerOpensMidRetrySequence(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, OpenDuration: time.Minute})
	if err != nil {
		t.Fatalf("NewCircuitBreaker() error = %v", err)
	}

	e := NewExecutor(WithCircuitBreaker(cb), WithRetryPolicy(fastRetry(t, 5)))

	calls := 0
	_, err = Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, &statusErr{code: 503, msg: "unavailable"}
	})

	// Two failures trip the breaker; the third attempt is rejected at the
	// gate instead of retrying on.
	if err != ErrCircuitOpen {
		t.Errorf("Do() error = %v, want ErrCircuitOpen", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_RateLimitTimeout(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 0.5, Burst: 1})
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}
	if !rl.Allow() {
		t.Fatal("draining token failed")
	}

	e := NewExecutor(WithRateLimiter(rl))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	_, err = Do(ctx, e, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	if err != ErrRateLimitTimeout {
		t.Errorf("Do() error = %v, want ErrRateLimitTimeout", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if Outcome(err) != OutcomeRateLimitTimeout {
		t.Errorf("Outcome = %v, want rate_limit_timeout", Outcome(err))
	}
}

func TestDo_RateLimitTimeoutDoesNotCountAsBreakerFailure(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewCircuitBreaker() error = %v", err)
	}
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 0.5, Burst: 1})
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	// Trip the breaker, wait for half-open, drain the bucket.
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("draining token failed")
	}

	e := NewExecutor(WithCircuitBreaker(cb), WithRateLimiter(rl))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := Do(ctx, e, func(ctx context.Context) (int, error) { return 0, nil }); err != ErrRateLimitTimeout {
		t.Fatalf("Do() error = %v, want ErrRateLimitTimeout", err)
	}

	// The abandoned trial slot must be free again for the next caller.
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after abandoned trial = %v, want nil", err)
	}
}

func TestDo_NoGuardsConfigured(t *testing.T) {
	e := NewExecutor()

	got, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}

	// Without a retry policy a failure surfaces after a single attempt.
	calls := 0
	_, err = Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		return "", &statusErr{code: 503, msg: "unavailable"}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Do() error = %v, want *FatalError", err)
	}
}

func TestDo_HalfOpenTrialSuccessClosesBreaker(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewCircuitBreaker() error = %v", err)
	}
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	e := NewExecutor(WithCircuitBreaker(cb))

	if _, err := Do(context.Background(), e, func(ctx context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestExecutor_Execute(t *testing.T) {
	e := NewExecutor(WithRetryPolicy(fastRetry(t, 2)))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &statusErr{code: 500, msg: "server error"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_AttemptHookRecordsOrdinals(t *testing.T) {
	var attempts []Attempt
	e := NewExecutor(
		WithRetryPolicy(fastRetry(t, 3)),
		WithAttemptHook(func(a Attempt) { attempts = append(attempts, a) }),
	)

	calls := 0
	_, _ = Do(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusErr{code: 503, msg: "unavailable"}
		}
		return 1, nil
	})

	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempt[%d].Number = %d, want %d", i, a.Number, i+1)
		}
	}
	if attempts[0].Class != Retryable || attempts[0].Err == nil {
		t.Error("first attempt should record a retryable failure")
	}
	if attempts[2].Err != nil {
		t.Error("final attempt should record success")
	}
}
