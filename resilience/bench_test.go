package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func BenchmarkClassify(b *testing.B) {
	err := &statusErr{code: 503, msg: "unavailable"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Classify(err)
	}
}

func BenchmarkClassify_PlainError(b *testing.B) {
	err := errors.New("invalid folder path")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Classify(err)
	}
}

func BenchmarkCircuitBreaker_ClosedPath(b *testing.B) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := cb.Allow(); err != nil {
			b.Fatal(err)
		}
		cb.RecordSuccess()
	}
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	rl, err := NewRateLimiter(RateLimiterConfig{Rate: 1e9, Burst: 1 << 30})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rl.Allow()
	}
}

func BenchmarkDo_SuccessNoGuards(b *testing.B) {
	e := NewExecutor()
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Do(ctx, e, func(ctx context.Context) (int, error) { return 1, nil }); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDo_SuccessFullStack(b *testing.B) {
	cb, _ := NewCircuitBreaker(CircuitBreakerConfig{})
	rl, _ := NewRateLimiter(RateLimiterConfig{Rate: 1e9, Burst: 1 << 30})
	p, _ := NewRetryPolicy(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2})

	e := NewExecutor(WithCircuitBreaker(cb), WithRateLimiter(rl), WithRetryPolicy(p))
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Do(ctx, e, func(ctx context.Context) (int, error) { return 1, nil }); err != nil {
			b.Fatal(err)
		}
	}
}
