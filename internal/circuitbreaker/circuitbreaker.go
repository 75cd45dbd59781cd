// Package circuitbreaker stops calling a failing upstream for a cool-down period.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
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

// CircuitBreaker opens after FailureThreshold consecutive failures and lets
// trial calls through once Timeout has passed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	now              func() time.Time
	onStateChange    func(from, to State)
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	// Component labels the breaker metrics (e.g. "imagegen").
	Component string
	// Now defaults to time.Now.
	Now func() time.Time
	// OnStateChange is called after each transition with the breaker locked.
	OnStateChange func(from, to State)
}

// New creates a CircuitBreaker. Zero values default to 5 failures, 2 successes and a 30s timeout.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Component != "" {
		observability.CircuitBreakerState.WithLabelValues(cfg.Component).Set(float64(StateClosed))
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		now:              cfg.Now,
		onStateChange:    cfg.OnStateChange,
	}
}

// Call runs fn when the circuit allows it and records the outcome.
// Context cancellation is not counted as an upstream failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.successCount = 0
		cb.transitionLocked(StateHalfOpen)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.failureCount = 0
			cb.openedAt = cb.now()
			cb.transitionLocked(StateOpen)
		}
		return err
	}

	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.successCount = 0
			cb.transitionLocked(StateClosed)
		}
	}
	return nil
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.component != "" {
		observability.RecordCircuitBreakerTransition(cb.component, from.String(), to.String(), int(to))
	}
	if cb.onStateChange != nil {
		// Hooks run synchronously; they must not call back into the breaker.
		cb.onStateChange(from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
