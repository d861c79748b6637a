// Package resilience provides the fault-tolerance primitives the pipeline
// leans on when its dependencies misbehave: a circuit breaker for the event
// stream, bounded retry for database writes, and a timeout wrapper for
// storage calls.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker phase. The numeric values are stable because
// they are exported as a gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes when a breaker trips and how it recovers. Zero
// values fall back to the defaults: trip after 5 consecutive failures, probe
// again after 30 seconds, one probe at a time.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return cfg
}

// CircuitBreaker fails fast once a dependency has failed often enough that
// waiting on it again is pointless. Consecutive failures trip it open; after
// the reset timeout it admits a limited number of probe calls, and one probe
// success closes it again.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	log  *slog.Logger

	// clock is replaced in tests to step through the cool-down without
	// sleeping.
	clock func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time
}

// NewCircuitBreaker builds a breaker in the closed state.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		log:   slog.Default().With("component", "circuit-breaker", "breaker", name),
		clock: time.Now,
	}
}

// Name returns the breaker's label, used for metrics.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn if the breaker admits the call and records the outcome.
// While open it returns ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.observe(err)
	return err
}

// GetState reports the breaker's current phase.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toClosed()
	cb.log.Info("breaker reset")
}

// admit decides whether a call may proceed, moving an open breaker to
// half-open once the cool-down has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		remaining := cb.cfg.ResetTimeout - cb.clock().Sub(cb.openedAt)
		if remaining > 0 {
			return fmt.Errorf("%w: %s rejects calls for another %v", ErrCircuitOpen, cb.name, remaining)
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.log.Info("breaker half-open, probing", "cooldown", cb.cfg.ResetTimeout)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s probe already in flight", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.log.Info("probe succeeded, breaker closed")
		}
		cb.toClosed()
		return
	}

	cb.failures++
	switch cb.state {
	case StateHalfOpen:
		cb.toOpen()
		cb.log.Warn("probe failed, breaker re-opened")
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.toOpen()
			cb.log.Warn("breaker opened",
				"consecutive_failures", cb.failures,
				"threshold", cb.cfg.FailureThreshold,
			)
		}
	}
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.openedAt = cb.clock()
}
