// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jllopis/vigil/pkg/resilience"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHistorySize bounds the recent-error history.
const DefaultHistorySize = 100

// Option configures a Monitor instance.
type Option func(*Monitor) error

// WithMeterProvider sets the metrics sink. The global provider is used otherwise.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(m *Monitor) error {
		m.meterProvider = provider
		return nil
	}
}

// WithTracerProvider sets the tracer provider used by the guarded executor.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(m *Monitor) error {
		m.tracerProvider = provider
		return nil
	}
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		m.logger = logger
		return nil
	}
}

// WithHistorySize bounds the number of records kept in memory.
func WithHistorySize(n int) Option {
	return func(m *Monitor) error {
		if n < 1 {
			return fmt.Errorf("history size must be positive, got %d", n)
		}
		m.historySize = n
		return nil
	}
}

// WithRegistry shares an existing breaker registry.
func WithRegistry(registry *resilience.Registry) Option {
	return func(m *Monitor) error {
		m.registry = registry
		return nil
	}
}

// WithBreakerDefaults sets the configuration new breakers start from.
func WithBreakerDefaults(cfg resilience.CircuitBreakerConfig) Option {
	return func(m *Monitor) error {
		m.breakerDefaults = &cfg
		return nil
	}
}

// WithSLOTargets replaces the default SLO targets.
func WithSLOTargets(targets []SLOTarget) Option {
	return func(m *Monitor) error {
		indexed, err := indexTargets(targets)
		if err != nil {
			return err
		}
		m.sloTargets = indexed
		return nil
	}
}

// WithLatencyTargets sets per-operation latency objectives.
func WithLatencyTargets(targets map[string]time.Duration) Option {
	return func(m *Monitor) error {
		m.latencyTargets = copyLatency(targets)
		return nil
	}
}

// WithJournal persists records to j in addition to the in-memory history.
func WithJournal(j Journal) Option {
	return func(m *Monitor) error {
		m.journal = j
		return nil
	}
}

// WithEventEmitter receives an event for every record, recovery and breaker transition.
func WithEventEmitter(emitter EventEmitter) Option {
	return func(m *Monitor) error {
		if emitter == nil {
			emitter = NoopEventEmitter{}
		}
		m.emitter = emitter
		return nil
	}
}

// WithClock overrides the clock used for ids, timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		m.now = now
		return nil
	}
}
