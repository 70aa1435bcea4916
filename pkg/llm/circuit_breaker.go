package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until ResetAfter has passed.
	CircuitOpen
	// CircuitHalfOpen lets a single probe call through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe is allowed.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops oracle calls after repeated provider failures so that
// requests fail fast with OracleUnavailable instead of waiting on a dead endpoint.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed. An open circuit moves to
// half-open once ResetAfter has elapsed and admits one probe.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, fmt.Errorf("%w: provider failed %d times, last failure %v ago",
			ErrCircuitOpen, cb.consecutiveFails, since.Round(time.Second))
	case CircuitHalfOpen:
		return false, fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
	default:
		return false, fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and trips the circuit at the threshold.
// A failed half-open probe reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
