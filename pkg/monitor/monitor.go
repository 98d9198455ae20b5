// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor records classified errors, guards operations with named
// circuit breakers, tracks recoveries and compares error rates against SLOs.
//
// A Monitor is an explicitly constructed state object. Tests and independent
// subsystems each build their own and never share hidden globals.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/resilience"
	"github.com/jllopis/vigil/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Monitor is the error resilience and SLO monitoring state object.
type Monitor struct {
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *telemetry.ErrorMetrics
	registrations  []metric.Registration

	registry        *resilience.Registry
	breakerDefaults *resilience.CircuitBreakerConfig
	journal         Journal
	emitter         EventEmitter
	now             func() time.Time
	historySize     int

	// mu guards the aggregate statistics.
	mu             sync.Mutex
	totalErrors    int
	totalRequests  int
	categoryCounts map[classify.Category]int
	history        []*ErrorRecord
	lastMillis     map[classify.Category]int64
	sameMillis     map[classify.Category]int

	sloMu          sync.RWMutex
	sloTargets     map[string]SLOTarget
	latencyTargets map[string]time.Duration
}

// New creates a Monitor. Instruments and gauge callbacks are registered on the
// meter provider here, so a misconfigured sink fails fast.
func New(opts ...Option) (*Monitor, error) {
	m := &Monitor{
		logger:         slog.Default(),
		emitter:        NoopEventEmitter{},
		now:            time.Now,
		historySize:    DefaultHistorySize,
		categoryCounts: make(map[classify.Category]int),
		lastMillis:     make(map[classify.Category]int64),
		sameMillis:     make(map[classify.Category]int),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.sloTargets == nil {
		targets, err := indexTargets(DefaultSLOTargets())
		if err != nil {
			return nil, err
		}
		m.sloTargets = targets
	}
	if m.latencyTargets == nil {
		m.latencyTargets = make(map[string]time.Duration)
	}

	if m.tracerProvider == nil {
		m.tracerProvider = otel.GetTracerProvider()
	}
	m.tracer = m.tracerProvider.Tracer(telemetry.MeterName)

	if m.registry == nil {
		defaults := resilience.CircuitBreakerConfig{Now: m.now}
		if m.breakerDefaults != nil {
			defaults = *m.breakerDefaults
			if defaults.Now == nil {
				defaults.Now = m.now
			}
		}
		m.registry = resilience.NewRegistry(defaults)
	} else if m.breakerDefaults != nil {
		m.registry.SetDefaults(*m.breakerDefaults)
	}
	m.registry.SetStateChangeHook(m.onBreakerStateChange)

	metrics, err := telemetry.NewErrorMetrics(m.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	m.metrics = metrics

	if err := m.registerGauges(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// Close unregisters the gauge callbacks. Recording keeps working afterwards
// but gauges are no longer sampled.
func (m *Monitor) Close() error {
	var errs []error
	for _, reg := range m.registrations {
		if err := reg.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	m.registrations = nil
	return errors.Join(errs...)
}

// Registry returns the breaker registry owned by the monitor.
func (m *Monitor) Registry() *resilience.Registry {
	return m.registry
}

// Logger returns the monitor logger.
func (m *Monitor) Logger() *slog.Logger {
	return m.logger
}

// CircuitBreaker returns the breaker for name, creating it on first use.
func (m *Monitor) CircuitBreaker(name string, opts ...resilience.Option) *resilience.CircuitBreaker {
	return m.registry.Get(name, opts...)
}

// SetBreakerDefaults changes the configuration of breakers created from now on.
func (m *Monitor) SetBreakerDefaults(cfg resilience.CircuitBreakerConfig) {
	if cfg.Now == nil {
		cfg.Now = m.now
	}
	m.registry.SetDefaults(cfg)
}

func (m *Monitor) registerGauges() error {
	reg, err := m.metrics.AddErrorRateCallback(func(observe telemetry.Observe) {
		m.safely(context.Background(), "sample error rate", func() error {
			for _, result := range m.EvaluateSLOs() {
				observe(result.CurrentRate, attribute.String(telemetry.AttrCategory, result.Category))
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("register error rate gauge: %w", err)
	}
	m.registrations = append(m.registrations, reg)

	reg, err = m.metrics.AddBreakerStatusCallback(func(observe telemetry.Observe) {
		m.safely(context.Background(), "sample breaker status", func() error {
			for _, status := range m.registry.Statuses() {
				observe(status.State.Gauge(), telemetry.BreakerAttributes(status.Name, string(status.State))...)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("register breaker gauge: %w", err)
	}
	m.registrations = append(m.registrations, reg)
	return nil
}

func (m *Monitor) onBreakerStateChange(name string, from, to resilience.State) {
	level := slog.LevelInfo
	if to == resilience.StateOpen {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "circuit breaker state changed",
		slog.String("breaker", name),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	m.emit(context.Background(), EventBreakerState, map[string]any{
		"breaker": name,
		"from":    string(from),
		"to":      string(to),
	})
}

// safely runs a side step of recording. Errors and panics are logged and
// never reach the caller.
func (m *Monitor) safely(ctx context.Context, step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "monitor step panicked",
				slog.String("step", step),
				slog.Any("panic", r),
			)
		}
	}()
	if err := fn(); err != nil {
		m.logger.ErrorContext(ctx, "monitor step failed",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}
}
