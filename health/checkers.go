package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/drivebridge/drivebridge/auth"
	"github.com/drivebridge/drivebridge/resilience"
)

// BreakerChecker reports the circuit breaker state toward the storage API.
// Closed is healthy, half-open is degraded, open is unhealthy.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for the given breaker.
func NewBreakerChecker(name string, breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

// Name returns the checker name.
func (c *BreakerChecker) Name() string { return c.name }

// Check reports the breaker state.
func (c *BreakerChecker) Check(context.Context) Result {
	snap := c.breaker.Snapshot()
	details := map[string]any{
		"state":                snap.State.String(),
		"consecutive_failures": snap.ConsecutiveFailures,
	}
	if !snap.OpenedAt.IsZero() {
		details["opened_at"] = snap.OpenedAt.UTC().Format(time.RFC3339)
	}

	switch snap.State {
	case resilience.StateOpen:
		return Unhealthy("circuit breaker is open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit breaker is probing the upstream").WithDetails(details)
	default:
		return Healthy("circuit breaker is closed").WithDetails(details)
	}
}

// authStatuser is the slice of auth.Manager the checker needs.
type authStatuser interface {
	Status() auth.Status
}

// AuthChecker reports whether usable storage credentials are present.
// A missing authorization degrades the service rather than failing it: every
// endpoint except uploads still works.
type AuthChecker struct {
	manager authStatuser
}

// NewAuthChecker creates a checker for the authorization state.
func NewAuthChecker(manager authStatuser) *AuthChecker {
	return &AuthChecker{manager: manager}
}

// Name returns "auth".
func (c *AuthChecker) Name() string { return "auth" }

// Check reports the authorization state.
func (c *AuthChecker) Check(context.Context) Result {
	status := c.manager.Status()
	if !status.Authorized {
		return Degraded("storage access not authorized")
	}

	details := map[string]any{
		"has_refresh_token": status.HasRefreshToken,
	}
	if !status.Expiry.IsZero() {
		details["token_expiry"] = status.Expiry.UTC().Format(time.RFC3339)
	}
	if !status.HasRefreshToken {
		return Degraded("credentials cannot be refreshed").WithDetails(details)
	}
	return Healthy("storage access authorized").WithDetails(details)
}

// ReachabilityChecker probes an upstream URL. Any HTTP response, including an
// auth rejection, proves the upstream is reachable; only transport failures
// are unhealthy.
type ReachabilityChecker struct {
	name   string
	url    string
	client *http.Client
}

// NewReachabilityChecker creates a checker that probes url.
func NewReachabilityChecker(name, url string, client *http.Client) *ReachabilityChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ReachabilityChecker{name: name, url: url, client: client}
}

// Name returns the checker name.
func (c *ReachabilityChecker) Name() string { return c.name }

// Check probes the upstream.
func (c *ReachabilityChecker) Check(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Unhealthy("invalid probe URL", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Unhealthy("upstream unreachable", fmt.Errorf("%w: %v", ErrCheckFailed, err))
	}
	resp.Body.Close()

	return Healthy("upstream reachable").WithDetails(map[string]any{
		"status_code": resp.StatusCode,
	})
}
