package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records telemetry for remote API calls and breaker transitions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAttempt records one invocation of a remote operation with its
	// 1-based attempt ordinal, duration, and error status.
	RecordAttempt(ctx context.Context, meta CallMeta, attempt int, duration time.Duration, err error)

	// RecordOutcome records the final outcome kind of a logical call.
	RecordOutcome(ctx context.Context, meta CallMeta, outcome string)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, dependency, from, to string)
}

type metricsImpl struct {
	attemptCount metric.Int64Counter
	errorCount   metric.Int64Counter
	retryCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	outcomeCount metric.Int64Counter
	breakerCount metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	attemptCount, err := meter.Int64Counter(
		"remote.call.attempts",
		metric.WithDescription("Total remote operation invocations, including retries"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"remote.call.errors",
		metric.WithDescription("Total failed remote operation invocations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"remote.call.retries",
		metric.WithDescription("Total invocations beyond the first attempt"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"remote.call.duration_ms",
		metric.WithDescription("Remote operation invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	outcomeCount, err := meter.Int64Counter(
		"remote.call.outcomes",
		metric.WithDescription("Final outcomes of logical remote calls, by kind"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	breakerCount, err := meter.Int64Counter(
		"remote.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		attemptCount: attemptCount,
		errorCount:   errorCount,
		retryCount:   retryCount,
		durationHist: durationHist,
		outcomeCount: outcomeCount,
		breakerCount: breakerCount,
	}, nil
}

func (m *metricsImpl) RecordAttempt(ctx context.Context, meta CallMeta, attempt int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("remote.dependency", meta.Dependency),
		attribute.String("remote.operation", meta.Operation),
	}
	opt := metric.WithAttributes(attrs...)

	m.attemptCount.Add(ctx, 1, opt)
	if attempt > 1 {
		m.retryCount.Add(ctx, 1, opt)
	}
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

func (m *metricsImpl) RecordOutcome(ctx context.Context, meta CallMeta, outcome string) {
	m.outcomeCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("remote.dependency", meta.Dependency),
		attribute.String("remote.operation", meta.Operation),
		attribute.String("outcome", outcome),
	))
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, dependency, from, to string) {
	m.breakerCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("remote.dependency", dependency),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
