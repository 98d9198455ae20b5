// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/resilience"
)

// ErrorStatistics is a point-in-time copy of the aggregate state. Mutating it
// does not affect the monitor.
type ErrorStatistics struct {
	TotalErrors     int                       `json:"total_errors" yaml:"total_errors"`
	TotalRequests   int                       `json:"total_requests" yaml:"total_requests"`
	CategoryCounts  map[classify.Category]int `json:"category_counts" yaml:"category_counts"`
	RecentErrors    []ErrorRecord             `json:"recent_errors" yaml:"recent_errors"`
	CircuitBreakers []resilience.Status       `json:"circuit_breakers" yaml:"circuit_breakers"`
}

// Statistics returns a snapshot of counters, recent errors (oldest first) and
// the status of every registered breaker.
func (m *Monitor) Statistics() ErrorStatistics {
	m.mu.Lock()
	stats := ErrorStatistics{
		TotalErrors:    m.totalErrors,
		TotalRequests:  m.totalRequests,
		CategoryCounts: make(map[classify.Category]int, len(m.categoryCounts)),
		RecentErrors:   make([]ErrorRecord, 0, len(m.history)),
	}
	for category, count := range m.categoryCounts {
		stats.CategoryCounts[category] = count
	}
	for _, rec := range m.history {
		stats.RecentErrors = append(stats.RecentErrors, rec.clone())
	}
	m.mu.Unlock()

	stats.CircuitBreakers = m.registry.Statuses()
	return stats
}

// Record returns a copy of the record with the given id if it is still in
// the history.
func (m *Monitor) Record(errorID string) (ErrorRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec := m.findLocked(errorID); rec != nil {
		return rec.clone(), true
	}
	return ErrorRecord{}, false
}

// findLocked searches newest first since recoveries usually follow soon after
// the failure.
func (m *Monitor) findLocked(errorID string) *ErrorRecord {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == errorID {
			return m.history[i]
		}
	}
	return nil
}

// ResetStatistics clears counters, history and the id sequence, and destroys
// every circuit breaker. Breakers are recreated on their next use.
func (m *Monitor) ResetStatistics() {
	m.mu.Lock()
	m.totalErrors = 0
	m.totalRequests = 0
	m.categoryCounts = make(map[classify.Category]int)
	m.history = nil
	m.lastMillis = make(map[classify.Category]int64)
	m.sameMillis = make(map[classify.Category]int)
	m.registry.Reset()
	m.mu.Unlock()

	m.logger.Info("error statistics reset")
}
