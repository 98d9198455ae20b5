// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"sort"
	"sync"
	"time"
)

// Option adjusts the configuration of a breaker created by a Registry.
type Option func(*CircuitBreakerConfig)

// WithFailureThreshold sets the number of failures that opens the breaker.
func WithFailureThreshold(n int) Option {
	return func(c *CircuitBreakerConfig) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithRecoveryTimeout sets how long the breaker stays open.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(c *CircuitBreakerConfig) {
		if d > 0 {
			c.RecoveryTimeout = d
		}
	}
}

// WithMonitoringWindow sets the sliding window used for the error rate.
func WithMonitoringWindow(d time.Duration) Option {
	return func(c *CircuitBreakerConfig) {
		if d > 0 {
			c.MonitoringWindow = d
		}
	}
}

// WithClock overrides the breaker clock.
func WithClock(now func() time.Time) Option {
	return func(c *CircuitBreakerConfig) {
		if now != nil {
			c.Now = now
		}
	}
}

// WithStateChange registers a per-breaker transition callback.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// Registry hands out named breakers. The same name always yields the same
// instance until Reset.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
	hook     func(name string, from, to State)
}

// NewRegistry creates a registry whose breakers start from defaults.
func NewRegistry(defaults CircuitBreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// Get returns the breaker for name, creating it with opts merged over the
// registry defaults on first use. Options are ignored for existing breakers.
func (r *Registry) Get(name string, opts ...Option) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.defaults
	cfg.Name = name
	cfg.OnStateChange = nil
	for _, opt := range opts {
		opt(&cfg)
	}
	if hook := r.hook; hook != nil {
		own := cfg.OnStateChange
		cfg.OnStateChange = func(name string, from, to State) {
			hook(name, from, to)
			if own != nil {
				own(name, from, to)
			}
		}
	}

	cb = NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// Lookup returns the breaker for name without creating it.
func (r *Registry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Names returns the registered breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Statuses returns a snapshot of every breaker, sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered breakers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakers)
}

// Reset drops every breaker. Later Get calls create fresh instances.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Defaults returns the configuration new breakers start from.
func (r *Registry) Defaults() CircuitBreakerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// SetDefaults replaces the configuration used for breakers created from now on.
func (r *Registry) SetDefaults(cfg CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.Name = ""
	cfg.OnStateChange = nil
	if cfg.Now == nil {
		cfg.Now = r.defaults.Now
	}
	r.defaults = cfg
}

// SetStateChangeHook installs a callback applied to every breaker created afterwards.
func (r *Registry) SetStateChangeHook(fn func(name string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}
