// Package resilience protects outbound calls to the remote storage API.
//
// Every call leaving the service passes through an Executor that composes
// three guards around the operation:
//
//   - Circuit Breaker: stops calling the remote API after consecutive
//     failures, probes it with a single trial call after a cooldown.
//
//   - Rate Limiter: a token bucket that every attempt (including retries)
//     must acquire a permit from before the remote API is invoked.
//
//   - Retry: re-runs operations that failed with a retryable error, using
//     exponential backoff with jitter.
//
// Failures are split into retryable and fatal by Classify: transport errors
// and remote status codes 429/500/502/503/504 are worth retrying, everything
// else is surfaced immediately.
//
// # Usage
//
//	breaker, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
//	if err != nil {
//	    return err
//	}
//	limiter, err := resilience.NewRateLimiter(resilience.RateLimiterConfig{})
//	if err != nil {
//	    return err
//	}
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(breaker),
//	    resilience.WithRateLimiter(limiter),
//	    resilience.WithRetryPolicy(policy),
//	)
//
//	folder, err := resilience.Do(ctx, exec, func(ctx context.Context) (*Folder, error) {
//	    return client.findFolder(ctx, name, parentID)
//	})
//
// The outcome of a call is its error value: nil for success, ErrCircuitOpen
// when the breaker rejected the call, ErrRateLimitTimeout when no permit
// arrived within the caller's deadline, and a *FatalError wrapping the cause
// for everything that is not worth retrying (including retryable failures
// that exhausted the attempt budget). Outcome maps any of these to a stable
// kind for the HTTP boundary.
//
// A shared CircuitBreaker and RateLimiter pair guards one remote dependency;
// construct one set per dependency and pass it to every Executor that talks
// to it.
package resilience
