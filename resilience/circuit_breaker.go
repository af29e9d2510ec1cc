package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// errSkipRecording marks an op outcome the breaker records neither as a
// success nor a failure. The half-open slot is still released.
var errSkipRecording = errors.New("breaker outcome not recorded")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration. Zero fields take
// defaults at construction.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit from closed.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count that closes the
	// circuit from half-open.
	SuccessThreshold int

	// OpenDuration is how long the circuit stays open before admitting a
	// half-open probe.
	OpenDuration time.Duration

	// HalfOpenMaxCalls caps concurrent calls admitted while half-open.
	HalfOpenMaxCalls int
}

// withDefaults fills zero fields.
func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 60 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// CircuitBreaker tracks consecutive failures for one named resource and gates
// whether calls are attempted at all. All state transitions happen under one
// mutex: the admission check and the half-open slot increment are a single
// atomic step, so the half-open call count can never exceed its cap even with
// interleaved callers.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *slog.Logger

	mu            sync.Mutex
	state         CircuitState
	failures      int
	successes     int
	lastFailure   time.Time
	halfOpenCalls int
	now           func() time.Time
}

// BreakerStats is a point-in-time snapshot of a breaker.
type BreakerStats struct {
	Name           string
	State          CircuitState
	Failures       int
	Successes      int
	TimeUntilRetry time.Duration
	Config         CircuitBreakerConfig
}

// NewCircuitBreaker creates a breaker for the named resource, starting
// closed.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		state:  StateClosed,
		now:    time.Now,
	}
}

// Name returns the protected resource name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs op under breaker protection. When the circuit is open, or
// half-open and at capacity, op is never invoked and a *CircuitOpenError is
// returned. Otherwise op's outcome is recorded: a non-nil error counts as a
// failure, nil as a success, and an error wrapping errSkipRecording counts as
// neither.
func (cb *CircuitBreaker) Execute(op func() error) error {
	admittedHalfOpen, err := cb.admit()
	if err != nil {
		return err
	}

	opErr := op()

	cb.record(admittedHalfOpen, opErr)
	return opErr
}

// admit decides whether a call may proceed, performing the open-to-half-open
// transition when the open duration has elapsed. The call that triggers the
// transition is itself evaluated under half-open rules.
func (cb *CircuitBreaker) admit() (admittedHalfOpen bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		remaining := cb.config.OpenDuration - cb.now().Sub(cb.lastFailure)
		if remaining > 0 {
			return false, &CircuitOpenError{Name: cb.name, RetryAfter: remaining}
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenCalls = 0
		cb.successes = 0
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return false, &CircuitOpenError{Name: cb.name}
		}
		cb.halfOpenCalls++
		return true, nil
	}

	return false, nil
}

// record releases the half-open slot and applies the call outcome.
func (cb *CircuitBreaker) record(admittedHalfOpen bool, opErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if admittedHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}

	switch {
	case errors.Is(opErr, errSkipRecording):
	case opErr != nil:
		cb.onFailure()
	default:
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateHalfOpen:
		// Any failure during a probe re-opens the circuit immediately.
		cb.successes = 0
		cb.transition(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.successes = 0
			cb.transition(StateClosed)
		}
	}
}

// transition changes state under the held lock and logs the edge.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.logger != nil && from != to {
		cb.logger.Info("circuit breaker state changed",
			"name", cb.name,
			"from", from.String(),
			"to", to.String(),
		)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker's counters and configuration.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := BreakerStats{
		Name:      cb.name,
		State:     cb.state,
		Failures:  cb.failures,
		Successes: cb.successes,
		Config:    cb.config,
	}
	if cb.state == StateOpen {
		if remaining := cb.config.OpenDuration - cb.now().Sub(cb.lastFailure); remaining > 0 {
			stats.TimeUntilRetry = remaining
		}
	}
	return stats
}

// Reset forces the breaker to closed with all counters zeroed, regardless of
// current state. Operational recovery only, not part of normal call flow.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0
}
