// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricErrorsTotal       = "vigil.errors.total"
	MetricErrorRate         = "vigil.errors.rate"
	MetricRecoveriesTotal   = "vigil.recoveries.total"
	MetricRecoveryDuration  = "vigil.recovery.duration"
	MetricBreakerStatus     = "vigil.circuitbreaker.status"
	MetricOperationResults  = "vigil.slo.operation.results"
	MetricOperationDuration = "vigil.slo.operation.duration"
)

// MeterName is the instrumentation scope used by Vigil.
const MeterName = "github.com/jllopis/vigil"

// Observe reports one gauge value.
type Observe func(value float64, attrs ...attribute.KeyValue)

// GaugeSource is called on every collection and reports current values.
type GaugeSource func(observe Observe)

// ErrorMetrics holds every instrument used by the monitor. All instruments
// are created up front by NewErrorMetrics.
type ErrorMetrics struct {
	meter metric.Meter

	// errorCounter tracks recorded errors by category and severity
	errorCounter metric.Int64Counter

	// recoveryCounter tracks recovery attempts by action and outcome
	recoveryCounter metric.Int64Counter

	// recoveryDuration tracks how long recoveries take, in seconds
	recoveryDuration metric.Float64Histogram

	// operationResults is the pass/fail channel shared by latency and error-rate SLOs
	operationResults metric.Int64Counter

	// operationDuration tracks guarded operation latency, in milliseconds
	operationDuration metric.Float64Histogram

	// errorRate is the per-category error rate gauge
	errorRate metric.Float64ObservableGauge

	// breakerStatus is the circuit breaker gauge (0=closed, 1=open, 0.5=half-open)
	breakerStatus metric.Float64ObservableGauge
}

// NewErrorMetrics creates the instruments on the given provider. A nil
// provider falls back to the global one.
func NewErrorMetrics(provider metric.MeterProvider) (*ErrorMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(MeterName)
	em := &ErrorMetrics{meter: meter}

	var err error
	if em.errorCounter, err = meter.Int64Counter(
		MetricErrorsTotal,
		metric.WithDescription("Total recorded errors by category and severity"),
	); err != nil {
		return nil, err
	}
	if em.recoveryCounter, err = meter.Int64Counter(
		MetricRecoveriesTotal,
		metric.WithDescription("Recovery attempts by action and outcome"),
	); err != nil {
		return nil, err
	}
	if em.recoveryDuration, err = meter.Float64Histogram(
		MetricRecoveryDuration,
		metric.WithDescription("Time spent recovering from an error"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if em.operationResults, err = meter.Int64Counter(
		MetricOperationResults,
		metric.WithDescription("SLO operation outcomes (pass/fail)"),
	); err != nil {
		return nil, err
	}
	if em.operationDuration, err = meter.Float64Histogram(
		MetricOperationDuration,
		metric.WithDescription("Guarded operation latency"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if em.errorRate, err = meter.Float64ObservableGauge(
		MetricErrorRate,
		metric.WithDescription("Error rate per category (errors / requests)"),
	); err != nil {
		return nil, err
	}
	if em.breakerStatus, err = meter.Float64ObservableGauge(
		MetricBreakerStatus,
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 0.5=half-open)"),
	); err != nil {
		return nil, err
	}
	return em, nil
}

// RecordError increments the error counter.
func (em *ErrorMetrics) RecordError(ctx context.Context, attrs []attribute.KeyValue) {
	if em == nil {
		return
	}
	em.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRecovery increments the recovery counter and observes the duration in seconds.
func (em *ErrorMetrics) RecordRecovery(ctx context.Context, attrs []attribute.KeyValue, seconds float64, durationAttrs []attribute.KeyValue) {
	if em == nil {
		return
	}
	em.recoveryCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	em.recoveryDuration.Record(ctx, seconds, metric.WithAttributes(durationAttrs...))
}

// RecordOperationResult reports a pass/fail outcome on the operation-result channel.
func (em *ErrorMetrics) RecordOperationResult(ctx context.Context, attrs []attribute.KeyValue) {
	if em == nil {
		return
	}
	em.operationResults.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOperationDuration observes a guarded operation latency in milliseconds.
func (em *ErrorMetrics) RecordOperationDuration(ctx context.Context, ms float64, attrs []attribute.KeyValue) {
	if em == nil {
		return
	}
	em.operationDuration.Record(ctx, ms, metric.WithAttributes(attrs...))
}

// AddErrorRateCallback registers fn as a sampling callback of the error rate gauge.
func (em *ErrorMetrics) AddErrorRateCallback(fn GaugeSource) (metric.Registration, error) {
	return em.addCallback(em.errorRate, fn)
}

// AddBreakerStatusCallback registers fn as a sampling callback of the breaker gauge.
func (em *ErrorMetrics) AddBreakerStatusCallback(fn GaugeSource) (metric.Registration, error) {
	return em.addCallback(em.breakerStatus, fn)
}

func (em *ErrorMetrics) addCallback(gauge metric.Float64ObservableGauge, fn GaugeSource) (metric.Registration, error) {
	return em.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		fn(func(value float64, attrs ...attribute.KeyValue) {
			o.ObserveFloat64(gauge, value, metric.WithAttributes(attrs...))
		})
		return nil
	}, gauge)
}
