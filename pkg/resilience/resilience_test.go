// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	verrors "github.com/jllopis/vigil/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errFail = errors.New("failure")

func failing(calls *int) Operation {
	return func(context.Context) (any, error) {
		if calls != nil {
			*calls++
		}
		return nil, errFail
	}
}

func succeeding(context.Context) (any, error) {
	return "ok", nil
}

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("always fails")
	})

	if err == nil {
		t.Errorf("expected error after max attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryNonRecoverable(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithIsRecoverable(func(err error) bool {
		return false
	})
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("non-recoverable error")
	})

	if err == nil {
		t.Errorf("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryVigilErrorRecoverable(t *testing.T) {
	ve := verrors.New(verrors.CodeTimeout, "timed out", nil).WithRecoverable(true)

	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	attempts := 0
	err := config.Do(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return ve
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected retry to succeed")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	result, err := config.DoWithResult(context.Background(), func() (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %v", result)
	}
}

func TestCircuitBreakerClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, Name: "test"})

	if cb.State() != StateClosed {
		t.Errorf("expected initial state Closed")
	}

	for i := 0; i < 5; i++ {
		if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
			t.Errorf("call %d failed: %v", i, err)
		}
	}

	status := cb.Status()
	if status.State != StateClosed {
		t.Errorf("expected state to remain Closed after success")
	}
	if status.SuccessCount != 5 || status.TotalRequests != 5 {
		t.Errorf("expected 5 successes and requests, got %+v", status)
	}
	if status.ErrorRate != 0 {
		t.Errorf("expected zero error rate, got %v", status.ErrorRate)
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cfg := NewCircuitBreaker(CircuitBreakerConfig{}).Config()
	if cfg.FailureThreshold != 5 {
		t.Errorf("expected default threshold 5, got %d", cfg.FailureThreshold)
	}
	if cfg.RecoveryTimeout != 30*time.Second {
		t.Errorf("expected default recovery timeout 30s, got %v", cfg.RecoveryTimeout)
	}
	if cfg.MonitoringWindow != 60*time.Second {
		t.Errorf("expected default window 60s, got %v", cfg.MonitoringWindow)
	}
}

func TestCircuitBreakerOpensOnNthFailure(t *testing.T) {
	for _, threshold := range []int{1, 2, 5} {
		cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold})
		for i := 1; i <= threshold; i++ {
			_, _ = cb.Execute(context.Background(), failing(nil), nil)
			want := StateClosed
			if i == threshold {
				want = StateOpen
			}
			if got := cb.State(); got != want {
				t.Fatalf("threshold %d: after failure %d expected %s, got %s", threshold, i, want, got)
			}
		}
	}
}

func TestCircuitBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failing(nil), nil)
	_, _ = cb.Execute(ctx, succeeding, nil)
	_, _ = cb.Execute(ctx, failing(nil), nil)

	if cb.State() != StateClosed {
		t.Errorf("expected non-consecutive failures to keep the breaker closed")
	}
}

func TestCircuitBreakerScenario(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "svc", FailureThreshold: 2})
	ctx := context.Background()
	calls := 0

	_, err := cb.Execute(ctx, failing(&calls), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("expected original failure, got %v", err)
	}
	if s := cb.Status(); s.State != StateClosed || s.FailureCount != 1 {
		t.Fatalf("expected closed with 1 failure, got %+v", s)
	}

	_, err = cb.Execute(ctx, failing(&calls), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("expected original failure, got %v", err)
	}
	if s := cb.Status(); s.State != StateOpen || s.FailureCount != 2 {
		t.Fatalf("expected open with 2 failures, got %+v", s)
	}

	value, err := cb.Execute(ctx, failing(&calls), FallbackFunc(func(context.Context, error) (interface{}, error) {
		return "ok", nil
	}))
	if err != nil {
		t.Fatalf("expected fallback to mask the open breaker, got %v", err)
	}
	if value != "ok" {
		t.Errorf("expected 'ok', got %v", value)
	}
	if calls != 2 {
		t.Errorf("expected operation not to run while open, ran %d times", calls)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected breaker to stay open")
	}
}

func TestCircuitBreakerOpenError(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Name: "api"})
	_, _ = cb.Execute(context.Background(), failing(nil), nil)

	_, err := cb.Execute(context.Background(), func(context.Context) (any, error) {
		t.Fatalf("should not execute in open state")
		return nil, nil
	}, nil)

	if !verrors.IsCircuitOpen(err) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if !errors.Is(err, errFail) {
		t.Errorf("expected open error to wrap the triggering failure")
	}
	ve := verrors.AsVigilError(err)
	if !ve.Recoverable {
		t.Errorf("expected circuit breaker error to be marked recoverable")
	}
	if ve.Context["breaker"] != "api" {
		t.Errorf("expected breaker name in context, got %v", ve.Context["breaker"])
	}
}

func TestCircuitBreakerHalfOpenTransitions(t *testing.T) {
	clock := newFakeClock()
	newBreaker := func() *CircuitBreaker {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 1,
			RecoveryTimeout:  10 * time.Second,
			Now:              clock.Now,
		})
		_, _ = cb.Execute(context.Background(), failing(nil), nil)
		return cb
	}

	t.Run("stays open before timeout", func(t *testing.T) {
		cb := newBreaker()
		clock.Advance(9 * time.Second)
		calls := 0
		_, err := cb.Execute(context.Background(), failing(&calls), nil)
		if !verrors.IsCircuitOpen(err) || calls != 0 {
			t.Fatalf("expected short-circuit before timeout, err=%v calls=%d", err, calls)
		}
		if cb.State() != StateOpen {
			t.Errorf("expected open, got %s", cb.State())
		}
	})

	t.Run("success closes", func(t *testing.T) {
		cb := newBreaker()
		clock.Advance(10 * time.Second)
		if cb.State() != StateOpen {
			t.Fatalf("expected state to stay open until a call is attempted")
		}
		if _, err := cb.Execute(context.Background(), succeeding, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := cb.Status()
		if s.State != StateClosed || s.FailureCount != 0 {
			t.Errorf("expected closed with reset failures, got %+v", s)
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb := newBreaker()
		clock.Advance(11 * time.Second)
		_, _ = cb.Execute(context.Background(), failing(nil), nil)
		if cb.State() != StateOpen {
			t.Fatalf("expected open after failed trial, got %s", cb.State())
		}
		calls := 0
		_, err := cb.Execute(context.Background(), failing(&calls), nil)
		if !verrors.IsCircuitOpen(err) || calls != 0 {
			t.Errorf("expected the reopened breaker to wait a full timeout again")
		}
	})
}

func TestCircuitBreakerSingleHalfOpenTrial(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second, Now: clock.Now})
	_, _ = cb.Execute(context.Background(), failing(nil), nil)
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := cb.Execute(context.Background(), func(context.Context) (any, error) {
			close(started)
			<-release
			return "trial", nil
		}, nil)
		done <- err
	}()

	<-started
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open during trial, got %s", cb.State())
	}
	calls := 0
	_, err := cb.Execute(context.Background(), failing(&calls), nil)
	if !verrors.IsCircuitOpen(err) || calls != 0 {
		t.Errorf("expected concurrent call to short-circuit while the trial runs")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreakerErrorRateWindow(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 100,
		MonitoringWindow: time.Minute,
		Now:              clock.Now,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failing(nil), nil)
	_, _ = cb.Execute(ctx, failing(nil), nil)
	clock.Advance(30 * time.Second)
	_, _ = cb.Execute(ctx, succeeding, nil)
	_, _ = cb.Execute(ctx, failing(nil), nil)

	if rate := cb.ErrorRate(); rate != 0.75 {
		t.Errorf("expected 0.75, got %v", rate)
	}

	// The first two failures leave the window without any further update.
	clock.Advance(31 * time.Second)
	if rate := cb.ErrorRate(); rate != 0.5 {
		t.Errorf("expected 0.5 after window slides, got %v", rate)
	}

	clock.Advance(time.Hour)
	if rate := cb.ErrorRate(); rate != 0 {
		t.Errorf("expected 0 for empty window, got %v", rate)
	}
	if s := cb.Status(); s.TotalRequests != 4 {
		t.Errorf("expected lifetime total of 4, got %d", s.TotalRequests)
	}
}

func TestCircuitBreakerFallbackFailureReturnsOriginal(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 5})
	fallbackErr := errors.New("fallback broke")

	_, err := cb.Execute(context.Background(), failing(nil), FallbackFunc(func(context.Context, error) (interface{}, error) {
		return nil, fallbackErr
	}))
	if !errors.Is(err, errFail) {
		t.Errorf("expected original error, got %v", err)
	}
	if cb.Status().FailureCount != 1 {
		t.Errorf("expected failure to be recorded")
	}
}

func TestCircuitBreakerStateChangeHook(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "hooked",
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+string(from)+"->"+string(to))
		},
	})
	_, _ = cb.Execute(context.Background(), failing(nil), nil)
	cb.Reset()

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", transitions)
	}
	if transitions[0] != "hooked:closed->open" || transitions[1] != "hooked:open->closed" {
		t.Errorf("unexpected transitions %v", transitions)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Name: "test"})
	_ = cb.Call(context.Background(), func() error { return errors.New("fail") })

	if cb.State() != StateOpen {
		t.Fatalf("expected circuit to be open")
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected state Closed after reset")
	}
	if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("call failed after reset: %v", err)
	}
}

func TestStateGauge(t *testing.T) {
	if StateClosed.Gauge() != 0 || StateOpen.Gauge() != 1 || StateHalfOpen.Gauge() != 0.5 {
		t.Errorf("unexpected gauge values")
	}
}
