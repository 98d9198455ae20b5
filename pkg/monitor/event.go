// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"time"
)

// EventType identifies something the monitor observed.
type EventType string

const (
	EventErrorRecorded EventType = "error.recorded"
	EventRecovery      EventType = "error.recovery"
	EventBreakerState  EventType = "breaker.state"
	EventSLOViolation  EventType = "slo.violation"
)

// Event is emitted to the configured EventEmitter.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventEmitter receives monitor events. Emit must not block.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

func (m *Monitor) emit(ctx context.Context, eventType EventType, payload map[string]any) {
	m.safely(ctx, "emit event", func() error {
		m.emitter.Emit(ctx, Event{
			Type:      eventType,
			Timestamp: m.now().UTC(),
			Payload:   payload,
		})
		return nil
	})
}
