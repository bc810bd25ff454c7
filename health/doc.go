// Package health aggregates readiness checks for the service.
//
// Checkers report one of three states: healthy, degraded (serving, but
// impaired, e.g. circuit breaker half-open or authorization missing), and
// unhealthy. The aggregator runs all registered checkers in parallel with a
// shared timeout and folds their results into an overall status.
//
// Domain checkers cover the circuit breaker to the storage API, the OAuth
// authorization state, and upstream reachability.
package health
