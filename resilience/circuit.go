package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls pass through normally.
	StateClosed State = iota
	// StateOpen means all calls are rejected without reaching the remote API.
	StateOpen
	// StateHalfOpen means a single trial call probes whether the remote API
	// recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	// Default: 5
	FailureThreshold int

	// OpenDuration is how long the circuit stays open before admitting a
	// half-open trial call.
	// Default: 60 seconds
	OpenDuration time.Duration

	// OnStateChange is called (under the breaker lock) when the state
	// changes.
	OnStateChange func(from, to State)
}

// CircuitBreaker tracks consecutive failures across calls to one remote
// dependency and short-circuits calls while the dependency looks unhealthy.
// One breaker instance is shared by all callers of that dependency; state is
// mutated under a single mutex and no lock is held across the remote call
// itself.
//
// Callers use the gate API: Allow admits or rejects an attempt,
// RecordSuccess/RecordFailure report the verdict, and Release abandons an
// admission whose operation was never invoked (rate-limiter timeout).
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker validates the configuration and creates a breaker in the
// closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenDuration == 0 {
		config.OpenDuration = 60 * time.Second
	}

	if config.FailureThreshold < 1 {
		return nil, fmt.Errorf("resilience: FailureThreshold must be >= 1, got %d", config.FailureThreshold)
	}
	if config.OpenDuration < 0 {
		return nil, fmt.Errorf("resilience: OpenDuration must not be negative, got %v", config.OpenDuration)
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}, nil
}

// Allow reports whether an attempt may proceed. It returns ErrCircuitOpen
// while the circuit is open, and while a half-open trial is already in
// flight. An admitted half-open call becomes the trial; its verdict must be
// reported with RecordSuccess, RecordFailure, or Release.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
	}
	return nil
}

// RecordSuccess reports a successful remote call. In the closed state it
// resets the consecutive failure count; a successful half-open trial closes
// the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.consecutiveFailures = 0
		cb.setStateLocked(StateClosed)
	}
}

// RecordFailure reports a failed remote call of either classification. In
// the closed state it increments the consecutive failure count and opens the
// circuit at the threshold; a failed half-open trial reopens the circuit and
// restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.openedAt = time.Now()
			cb.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.openedAt = time.Now()
		cb.setStateLocked(StateOpen)
	}
}

// Release abandons an admission whose remote operation was never invoked.
// It frees the half-open trial slot without a verdict; admission control
// outcomes must not count for or against the remote dependency.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
}

// State returns the current state, applying the open -> half-open cooldown
// transition if it is due.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset forces the breaker back to closed and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	cb.setStateLocked(StateClosed)
}

// Snapshot reports the breaker state for diagnostics.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := CircuitBreakerSnapshot{
		State:               cb.currentStateLocked(),
		ConsecutiveFailures: cb.consecutiveFailures,
		TrialInFlight:       cb.trialInFlight,
	}
	if snap.State == StateOpen {
		snap.OpenedAt = cb.openedAt
	}
	return snap
}

// CircuitBreakerSnapshot is a point-in-time view of breaker state.
type CircuitBreakerSnapshot struct {
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
	TrialInFlight       bool
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.OpenDuration {
		cb.trialInFlight = false
		cb.setStateLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, state)
	}
}
