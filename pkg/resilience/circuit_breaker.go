// SPDX-License-Identifier: Apache-2.0
// Package resilience provides circuit breaker, fallback and retry patterns for Vigil.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jllopis/vigil/pkg/errors"
)

// State represents the state of a circuit breaker.
type State string

const (
	// StateClosed means the circuit breaker is working normally.
	StateClosed State = "closed"

	// StateOpen means the circuit breaker is blocking calls.
	StateOpen State = "open"

	// StateHalfOpen means the circuit breaker lets one trial call through.
	StateHalfOpen State = "half-open"
)

// Gauge returns the value exported for the state: 0 closed, 1 open, 0.5 half-open.
func (s State) Gauge() float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
	DefaultMonitoringWindow = 60 * time.Second
)

// CircuitBreakerConfig configures a circuit breaker. Zero values take defaults.
type CircuitBreakerConfig struct {
	// Name is the circuit breaker identifier for logging/metrics.
	Name string

	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long to stay open before allowing a trial call.
	RecoveryTimeout time.Duration

	// MonitoringWindow bounds the request history used for the error rate.
	MonitoringWindow time.Duration

	// Now overrides the clock; time.Now when nil.
	Now func() time.Time

	// OnStateChange is called after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.MonitoringWindow <= 0 {
		c.MonitoringWindow = DefaultMonitoringWindow
	}
	if c.Name == "" {
		c.Name = "circuit_breaker"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Operation is the protected call.
type Operation func(ctx context.Context) (any, error)

// Status is a read-only projection of a breaker.
type Status struct {
	Name          string    `json:"name" yaml:"name"`
	State         State     `json:"state" yaml:"state"`
	FailureCount  int       `json:"failure_count" yaml:"failure_count"`
	SuccessCount  int       `json:"success_count" yaml:"success_count"`
	ErrorRate     float64   `json:"error_rate" yaml:"error_rate"`
	TotalRequests int       `json:"total_requests" yaml:"total_requests"`
	LastFailure   time.Time `json:"last_failure,omitempty" yaml:"last_failure,omitempty"`
}

type outcome struct {
	at      time.Time
	success bool
}

// CircuitBreaker prevents cascading failures using the circuit breaker pattern.
// Outcomes are kept in a sliding window bounded by MonitoringWindow.
type CircuitBreaker struct {
	config        CircuitBreakerConfig
	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	totalRequests int
	history       []outcome
	lastFailure   time.Time
	lastErr       error
	trialInFlight bool
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config.withDefaults(),
		state:  StateClosed,
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Config returns the effective configuration.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}

// Execute runs op if the breaker allows it. While open, op is not called: the
// fallback result is returned when a fallback is given, otherwise a
// CodeCircuitOpen error wrapping the last failure. When op fails and a fallback
// is given, the fallback result is returned; if the fallback fails too, the
// original error is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback FallbackStrategy) (any, error) {
	if openErr := cb.acquire(); openErr != nil {
		if fallback != nil {
			if value, err := fallback.Execute(ctx, openErr); err == nil {
				return value, nil
			}
		}
		return nil, openErr
	}

	value, err := cb.run(ctx, op)
	if err == nil {
		cb.onSuccess()
		return value, nil
	}

	cb.onFailure(err)
	if fallback != nil {
		if fv, ferr := fallback.Execute(ctx, err); ferr == nil {
			return fv, nil
		}
	}
	return nil, err
}

// Call executes fn if the circuit breaker allows, tracking success/failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	_, err := cb.Execute(ctx, func(context.Context) (any, error) {
		return nil, fn()
	}, nil)
	return err
}

func (cb *CircuitBreaker) run(ctx context.Context, op Operation) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			cb.onFailure(fmt.Errorf("panic in protected operation: %v", r))
			panic(r)
		}
	}()
	return op(ctx)
}

// acquire decides whether a call may proceed, moving OPEN to HALF_OPEN once
// the recovery timeout has elapsed. Only one half-open trial runs at a time.
func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	var from State
	transitioned := false
	switch cb.state {
	case StateOpen:
		if cb.config.Now().Sub(cb.lastFailure) < cb.config.RecoveryTimeout {
			err := cb.openErrorLocked()
			cb.mu.Unlock()
			return err
		}
		from, transitioned = cb.state, true
		cb.state = StateHalfOpen
		cb.trialInFlight = true
	case StateHalfOpen:
		if cb.trialInFlight {
			err := cb.openErrorLocked()
			cb.mu.Unlock()
			return err
		}
		cb.trialInFlight = true
	}
	cb.mu.Unlock()

	if transitioned {
		cb.notify(from, StateHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) openErrorLocked() error {
	return errors.New(errors.CodeCircuitOpen, "circuit breaker open", cb.lastErr).
		WithContext("breaker", cb.config.Name).
		WithContext("state", string(cb.state)).
		WithRecoverable(true)
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	now := cb.config.Now()
	cb.successCount++
	cb.totalRequests++
	cb.appendLocked(now, true)

	from := cb.state
	switch cb.state {
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failureCount = 0
	case StateClosed:
		cb.failureCount = 0
	}
	cb.trialInFlight = false
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	now := cb.config.Now()
	cb.failureCount++
	cb.totalRequests++
	cb.lastErr = err
	cb.appendLocked(now, false)

	from := cb.state
	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.lastFailure = now
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.lastFailure = now
		}
	}
	cb.trialInFlight = false
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// appendLocked records an outcome and drops entries older than the window.
func (cb *CircuitBreaker) appendLocked(now time.Time, success bool) {
	cb.history = append(cb.history, outcome{at: now, success: success})
	cutoff := now.Add(-cb.config.MonitoringWindow)
	i := 0
	for i < len(cb.history) && cb.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.history = append(cb.history[:0], cb.history[i:]...)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// errorRateLocked counts only entries still inside the window at call time.
func (cb *CircuitBreaker) errorRateLocked() float64 {
	cutoff := cb.config.Now().Add(-cb.config.MonitoringWindow)
	total, failures := 0, 0
	for _, o := range cb.history {
		if o.at.Before(cutoff) {
			continue
		}
		total++
		if !o.success {
			failures++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failures) / float64(total)
}

// ErrorRate returns failures over total requests inside the monitoring window.
func (cb *CircuitBreaker) ErrorRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.errorRateLocked()
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Status returns a snapshot of the breaker.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Status{
		Name:          cb.config.Name,
		State:         cb.state,
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		ErrorRate:     cb.errorRateLocked(),
		TotalRequests: cb.totalRequests,
		LastFailure:   cb.lastFailure,
	}
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalRequests = 0
	cb.history = nil
	cb.lastFailure = time.Time{}
	cb.lastErr = nil
	cb.trialInFlight = false
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

// Open manually forces the circuit breaker to open state.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateOpen
	cb.lastFailure = cb.config.Now()
	cb.mu.Unlock()

	if from != StateOpen {
		cb.notify(from, StateOpen)
	}
}
