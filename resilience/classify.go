package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classification labels a failure from the remote operation.
type Classification int

const (
	// Retryable means repeating the same call could plausibly succeed.
	Retryable Classification = iota
	// Fatal means the failure is permanent: caller error, auth failure,
	// not-found, or anything else retrying cannot fix.
	Fatal
)

// String returns the classification name.
func (c Classification) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// StatusCoder is implemented by errors that carry a remote HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// retryableStatusCodes are remote responses worth retrying.
var retryableStatusCodes = map[int]bool{
	429: true, // Too Many Requests
	500: true, // Internal Server Error
	502: true, // Bad Gateway
	503: true, // Service Unavailable
	504: true, // Gateway Timeout
}

// retryableReasons are provider error reasons that indicate a transient
// condition even when the status code alone does not.
var retryableReasons = []string{
	"rateLimitExceeded",
	"userRateLimitExceeded",
	"quotaExceeded",
	"backendError",
	"internalError",
	"transientError",
}

// transientNetworkHints are substrings of transport errors that usually
// indicate a transient network condition.
var transientNetworkHints = []string{
	"connection",
	"timeout",
	"reset",
	"refused",
	"network",
	"broken pipe",
}

// Classify labels a non-nil failure as Retryable or Fatal.
//
// Network and connection errors, remote status codes 429/500/502/503/504,
// provider reasons such as rateLimitExceeded or backendError, and errors
// wrapped in RetryableError classify as Retryable. Everything else,
// including context cancellation, classifies as Fatal. Classify is a pure
// function: the same error value always yields the same classification.
func Classify(err error) Classification {
	if err == nil {
		return Fatal
	}

	// A cancelled caller must not trigger further attempts.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return Retryable
	}

	msg := err.Error()

	// Responses carrying a status code are decided by the code, with one
	// exception: providers report quota exhaustion under non-retryable
	// codes (403 rateLimitExceeded), so reasons are still honored.
	var coder StatusCoder
	if errors.As(err, &coder) {
		if retryableStatusCodes[coder.StatusCode()] {
			return Retryable
		}
		for _, reason := range retryableReasons {
			if strings.Contains(msg, reason) {
				return Retryable
			}
		}
		return Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}

	for _, reason := range retryableReasons {
		if strings.Contains(msg, reason) {
			return Retryable
		}
	}
	lower := strings.ToLower(msg)
	for _, hint := range transientNetworkHints {
		if strings.Contains(lower, hint) {
			return Retryable
		}
	}

	return Fatal
}
