// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigiltest

import (
	"context"
	"sync"

	"github.com/jllopis/vigil/pkg/monitor"
)

// EventCollector records monitor events. It implements monitor.EventEmitter.
type EventCollector struct {
	mu     sync.RWMutex
	events []monitor.Event
}

// NewEventCollector creates a new event collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements monitor.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, event monitor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns all collected events.
func (c *EventCollector) Events() []monitor.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]monitor.Event, len(c.events))
	copy(result, c.events)
	return result
}

// OfType returns the collected events of the given type.
func (c *EventCollector) OfType(eventType monitor.EventType) []monitor.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []monitor.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			result = append(result, ev)
		}
	}
	return result
}

// HasEvent checks if an event of the given type was collected.
func (c *EventCollector) HasEvent(eventType monitor.EventType) bool {
	return len(c.OfType(eventType)) > 0
}

// Count returns the number of collected events.
func (c *EventCollector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Reset clears all collected events.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
