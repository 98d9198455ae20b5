// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"sync"

	"github.com/jllopis/vigil/pkg/errors"
)

// FallbackStrategy defines a fallback behavior when primary operation fails.
type FallbackStrategy interface {
	// Execute runs the fallback operation. primaryErr is the failure that
	// triggered it, or the circuit-open error when the call was short-circuited.
	Execute(ctx context.Context, primaryErr error) (interface{}, error)
}

// FallbackFunc wraps a function as a FallbackStrategy.
type FallbackFunc func(ctx context.Context, primaryErr error) (interface{}, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc) Execute(ctx context.Context, err error) (interface{}, error) {
	return f(ctx, err)
}

// StaticFallback returns a static value on failure (the default-value action).
type StaticFallback struct {
	Value interface{}
}

// Execute implements FallbackStrategy.
func (s *StaticFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	return s.Value, nil
}

// CachedFallback returns the last known good value on failure (the
// cache-fallback action). It is safe for concurrent use.
type CachedFallback struct {
	mu    sync.RWMutex
	cache interface{}
	ok    bool
}

// NewCachedFallback creates a cache primed with an optional initial value.
func NewCachedFallback(initial ...interface{}) *CachedFallback {
	c := &CachedFallback{}
	if len(initial) > 0 {
		c.Store(initial[0])
	}
	return c
}

// Store records the latest good value.
func (c *CachedFallback) Store(value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = value
	c.ok = true
}

// Execute implements FallbackStrategy.
func (c *CachedFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ok {
		return nil, errors.New(errors.CodeInternal, "no cached value available", primaryErr).
			WithContext("fallback", "cache").
			WithRecoverable(false)
	}
	return c.cache, nil
}

// Wrap returns an operation that stores every successful result of op.
func (c *CachedFallback) Wrap(op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		value, err := op(ctx)
		if err == nil {
			c.Store(value)
		}
		return value, err
	}
}

// ChainedFallback tries multiple fallbacks in sequence.
type ChainedFallback struct {
	Fallbacks []FallbackStrategy
}

// Execute implements FallbackStrategy.
func (c *ChainedFallback) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	var lastErr error = primaryErr

	for _, fallback := range c.Fallbacks {
		value, err := fallback.Execute(ctx, lastErr)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}

	return nil, lastErr
}
