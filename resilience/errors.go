package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience outcomes.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	// without invoking the remote operation.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitTimeout is returned when no rate-limiter permit became
	// available within the caller's deadline.
	ErrRateLimitTimeout = errors.New("resilience: timed out waiting for rate limiter")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")
)

// FatalError wraps a failure that is not worth retrying. It is returned both
// for failures classified as fatal on their first occurrence and for
// retryable failures that exhausted the attempt budget; Exhausted
// distinguishes the two.
type FatalError struct {
	// Err is the last failure returned by the remote operation.
	Err error

	// Exhausted is true when the failure was retryable but the maximum
	// attempt count was reached.
	Exhausted bool

	// Attempts is the number of invocations that were made.
	Attempts int
}

func (e *FatalError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("resilience: %d attempts exhausted: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("resilience: fatal failure: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// RetryableError marks a failure as retryable regardless of what Classify
// would otherwise decide. Collaborators wrap errors in it to force a retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("resilience: retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// OutcomeKind labels the result of an executed call for the HTTP boundary.
type OutcomeKind int

const (
	// OutcomeSuccess means the operation returned a value.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFatal means the operation failed permanently.
	OutcomeFatal
	// OutcomeRetryExhausted means a transient failure survived every attempt.
	OutcomeRetryExhausted
	// OutcomeCircuitOpen means the breaker rejected the call without
	// invoking the operation.
	OutcomeCircuitOpen
	// OutcomeRateLimitTimeout means local admission control timed out; the
	// remote dependency was never consulted.
	OutcomeRateLimitTimeout
)

// String returns the stable wire name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFatal:
		return "fatal_failure"
	case OutcomeRetryExhausted:
		return "retry_exhausted"
	case OutcomeCircuitOpen:
		return "circuit_open"
	case OutcomeRateLimitTimeout:
		return "rate_limit_timeout"
	default:
		return "unknown"
	}
}

// Outcome maps an error returned by Do or Executor.Execute to its kind.
func Outcome(err error) OutcomeKind {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrCircuitOpen) {
		return OutcomeCircuitOpen
	}
	if errors.Is(err, ErrRateLimitTimeout) {
		return OutcomeRateLimitTimeout
	}
	var fatal *FatalError
	if errors.As(err, &fatal) && fatal.Exhausted {
		return OutcomeRetryExhausted
	}
	return OutcomeFatal
}
