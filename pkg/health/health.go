// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0
// Package health aggregates component health derived from breaker states and
// SLO outcomes.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status represents the health state of a component.
type Status string

const (
	// Healthy indicates the component is fully operational.
	Healthy Status = "HEALTHY"

	// Degraded indicates the component is operational but with reduced capacity.
	Degraded Status = "DEGRADED"

	// Unhealthy indicates the component is not operational.
	Unhealthy Status = "UNHEALTHY"
)

// Result represents the result of a health check.
type Result struct {
	Status    Status         `json:"status"`
	Component string         `json:"component"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	LastCheck time.Time      `json:"last_check"`
}

// Checker checks the health of a component.
type Checker interface {
	// Check returns the current health status of the component.
	Check(ctx context.Context) Result
}

// CheckerFunc wraps a function as a Checker.
type CheckerFunc func(ctx context.Context) Result

// Check calls f and stamps LastCheck when f left it empty.
func (f CheckerFunc) Check(ctx context.Context) Result {
	result := f(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}

// Static returns a checker with a constant status.
func Static(status Status, message string) Checker {
	return CheckerFunc(func(context.Context) Result {
		return Result{Status: status, Message: message}
	})
}

// Provider runs registered checkers.
type Provider struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{checkers: make(map[string]Checker)}
}

// Register registers a checker for a component, replacing any previous one.
func (p *Provider) Register(name string, checker Checker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers[name] = checker
}

// Check checks the health of a specific component.
func (p *Provider) Check(ctx context.Context, name string) (Result, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	p.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("checker not registered: %s", name)
	}
	result := checker.Check(ctx)
	result.Component = name
	return result, nil
}

// CheckAll checks every component. The overall status is Unhealthy if any
// component is, Degraded if any is degraded, Healthy otherwise. Results are
// sorted by component.
func (p *Provider) CheckAll(ctx context.Context) ([]Result, Status) {
	p.mu.RLock()
	checkers := make(map[string]Checker, len(p.checkers))
	for name, checker := range p.checkers {
		checkers[name] = checker
	}
	p.mu.RUnlock()

	results := make([]Result, 0, len(checkers))
	overall := Healthy
	for name, checker := range checkers {
		result := checker.Check(ctx)
		result.Component = name
		results = append(results, result)

		switch result.Status {
		case Unhealthy:
			overall = Unhealthy
		case Degraded:
			if overall == Healthy {
				overall = Degraded
			}
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Component < results[j].Component })
	return results, overall
}
