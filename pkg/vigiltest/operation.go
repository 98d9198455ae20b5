// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package vigiltest provides helpers for testing code guarded by Vigil:
// scripted operations with queued outcomes and a collector for monitor
// events.
//
// Example usage:
//
//	op := vigiltest.NewScriptedOperation().
//	    FailTimes(3, errors.New("fetch failed")).
//	    Succeed("ok")
//
//	value, err := m.ExecuteWithCircuitBreaker(ctx, "api", op.Operation(), nil)
package vigiltest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jllopis/vigil/pkg/resilience"
)

// Outcome is one scripted result.
type Outcome struct {
	Value any
	Err   error
	// Delay is waited before returning, or until ctx is done.
	Delay time.Duration
}

// ScriptedOperation returns queued outcomes in order and records every call.
type ScriptedOperation struct {
	mu         sync.Mutex
	outcomes   []Outcome
	next       int
	calls      int
	defaultOut *Outcome
}

// NewScriptedOperation creates an operation with an empty script.
func NewScriptedOperation() *ScriptedOperation {
	return &ScriptedOperation{}
}

// Succeed queues a successful outcome.
func (s *ScriptedOperation) Succeed(value any) *ScriptedOperation {
	return s.Add(Outcome{Value: value})
}

// Fail queues a failed outcome.
func (s *ScriptedOperation) Fail(err error) *ScriptedOperation {
	return s.Add(Outcome{Err: err})
}

// FailTimes queues n failures with the same error.
func (s *ScriptedOperation) FailTimes(n int, err error) *ScriptedOperation {
	for range n {
		s.Fail(err)
	}
	return s
}

// Add queues a fully configured outcome.
func (s *ScriptedOperation) Add(o Outcome) *ScriptedOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return s
}

// OtherwiseSucceed sets the outcome used once the script is exhausted.
func (s *ScriptedOperation) OtherwiseSucceed(value any) *ScriptedOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultOut = &Outcome{Value: value}
	return s
}

// OtherwiseFail sets the error returned once the script is exhausted.
func (s *ScriptedOperation) OtherwiseFail(err error) *ScriptedOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultOut = &Outcome{Err: err}
	return s
}

// Operation adapts the script to resilience.Operation.
func (s *ScriptedOperation) Operation() resilience.Operation {
	return s.Call
}

// Call returns the next scripted outcome.
func (s *ScriptedOperation) Call(ctx context.Context) (any, error) {
	s.mu.Lock()
	s.calls++
	var out Outcome
	switch {
	case s.next < len(s.outcomes):
		out = s.outcomes[s.next]
		s.next++
	case s.defaultOut != nil:
		out = *s.defaultOut
	default:
		n := s.calls
		s.mu.Unlock()
		return nil, fmt.Errorf("no more scripted outcomes (call %d)", n)
	}
	s.mu.Unlock()

	if out.Delay > 0 {
		select {
		case <-time.After(out.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out.Value, out.Err
}

// Calls returns how many times the operation ran.
func (s *ScriptedOperation) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Remaining returns the number of scripted outcomes not consumed yet.
func (s *ScriptedOperation) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes) - s.next
}
