// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigiltest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	vigilerrors "github.com/jllopis/vigil/pkg/errors"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/jllopis/vigil/pkg/resilience"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestScriptedOperation(t *testing.T) {
	boom := errors.New("boom")
	op := NewScriptedOperation().FailTimes(2, boom).Succeed("ok")
	ctx := context.Background()

	for i := range 2 {
		if _, err := op.Call(ctx); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	value, err := op.Call(ctx)
	if err != nil || value != "ok" {
		t.Fatalf("expected ok, got %v %v", value, err)
	}
	if op.Remaining() != 0 || op.Calls() != 3 {
		t.Errorf("unexpected counters: remaining=%d calls=%d", op.Remaining(), op.Calls())
	}
	if _, err := op.Call(ctx); err == nil {
		t.Errorf("expected exhausted script to fail")
	}

	op.OtherwiseSucceed("default")
	if value, _ := op.Call(ctx); value != "default" {
		t.Errorf("expected default outcome, got %v", value)
	}
}

func TestScriptedOperationDelayHonoursContext(t *testing.T) {
	op := NewScriptedOperation().Add(Outcome{Value: "late", Delay: time.Second})
	_, err := resilience.WithDeadline(op.Operation(), 10*time.Millisecond)(context.Background())
	if ve := vigilerrors.AsVigilError(err); ve.Code != vigilerrors.CodeTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestGuardedExecutionEvents(t *testing.T) {
	events := NewEventCollector()
	m, err := monitor.New(
		monitor.WithMeterProvider(noop.NewMeterProvider()),
		monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		monitor.WithEventEmitter(events),
		monitor.WithBreakerDefaults(resilience.CircuitBreakerConfig{FailureThreshold: 2}),
	)
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	defer m.Close()

	op := NewScriptedOperation().OtherwiseFail(errors.New("fetch failed"))
	fallback := &resilience.StaticFallback{Value: "cached"}
	ctx := context.Background()
	for range 3 {
		value, err := m.ExecuteWithCircuitBreaker(ctx, "profile", op.Operation(), fallback)
		if err != nil || value != "cached" {
			t.Fatalf("expected fallback value, got %v %v", value, err)
		}
	}

	if op.Calls() != 2 {
		t.Errorf("expected the open breaker to stop the third call, got %d calls", op.Calls())
	}
	if got := len(events.OfType(monitor.EventErrorRecorded)); got != 3 {
		t.Errorf("expected 3 error events, got %d", got)
	}
	if got := len(events.OfType(monitor.EventRecovery)); got != 3 {
		t.Errorf("expected 3 recovery events, got %d", got)
	}
	states := events.OfType(monitor.EventBreakerState)
	if len(states) != 1 || states[0].Payload["to"] != "open" {
		t.Errorf("expected one transition to open, got %+v", states)
	}
	m.CheckAllSLOs(ctx)
	if !events.HasEvent(monitor.EventSLOViolation) {
		t.Errorf("expected an SLO violation event")
	}

	events.Reset()
	if events.Count() != 0 {
		t.Errorf("expected reset collector")
	}
}
