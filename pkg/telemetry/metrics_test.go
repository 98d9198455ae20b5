// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*ErrorMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	em, err := NewErrorMetrics(provider)
	if err != nil {
		t.Fatalf("failed to create error metrics: %v", err)
	}
	return em, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewErrorMetrics(t *testing.T) {
	em, _ := newTestMetrics(t)
	if em == nil {
		t.Fatal("expected non-nil ErrorMetrics")
	}

	global, err := NewErrorMetrics(nil)
	if err != nil || global == nil {
		t.Fatalf("expected global provider fallback, got %v", err)
	}
}

func TestRecordErrorMetric(t *testing.T) {
	em, reader := newTestMetrics(t)
	ctx := context.Background()

	em.RecordError(ctx, ErrorAttributes("API", "medium", "HTTPError", 500, nil))
	em.RecordError(ctx, ErrorAttributes("API", "medium", "HTTPError", 500, nil))

	m, ok := collect(t, reader, MetricErrorsTotal)
	if !ok {
		t.Fatal("expected error counter to be exported")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("expected one data point, got %#v", m.Data)
	}
	if sum.DataPoints[0].Value != 2 {
		t.Errorf("expected 2 errors, got %d", sum.DataPoints[0].Value)
	}
	if v, _ := sum.DataPoints[0].Attributes.Value(AttrErrorCode); v.AsString() != "500" {
		t.Errorf("expected error_code 500, got %q", v.AsString())
	}

	// Nil metrics should not panic
	var nilMetrics *ErrorMetrics
	nilMetrics.RecordError(ctx, nil)
	nilMetrics.RecordRecovery(ctx, nil, 1, nil)
	nilMetrics.RecordOperationResult(ctx, nil)
	nilMetrics.RecordOperationDuration(ctx, 1, nil)
}

func TestRecordRecovery(t *testing.T) {
	em, reader := newTestMetrics(t)
	ctx := context.Background()

	em.RecordRecovery(ctx, RecoveryAttributes("NETWORK_1", "retry", true, 1500), 1.5, RecoveryDurationAttributes("retry"))

	m, ok := collect(t, reader, MetricRecoveryDuration)
	if !ok {
		t.Fatal("expected recovery histogram to be exported")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data %#v", m.Data)
	}
	if hist.DataPoints[0].Sum != 1.5 || hist.DataPoints[0].Count != 1 {
		t.Errorf("expected a single 1.5s observation, got %+v", hist.DataPoints[0])
	}
	if m.Unit != "s" {
		t.Errorf("expected unit s, got %q", m.Unit)
	}
}

func TestOperationChannel(t *testing.T) {
	em, reader := newTestMetrics(t)
	ctx := context.Background()

	em.RecordOperationResult(ctx, OperationAttributes("fetch", true))
	em.RecordOperationResult(ctx, OperationAttributes("fetch", false))
	em.RecordOperationDuration(ctx, 12.5, OperationAttributes("fetch", true))

	m, ok := collect(t, reader, MetricOperationResults)
	if !ok {
		t.Fatal("expected operation results to be exported")
	}
	sum := m.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Errorf("expected pass and fail series, got %d", len(sum.DataPoints))
	}

	if _, ok := collect(t, reader, MetricOperationDuration); !ok {
		t.Error("expected operation duration to be exported")
	}
}

func TestGaugeCallbacks(t *testing.T) {
	em, reader := newTestMetrics(t)

	reg, err := em.AddErrorRateCallback(func(observe Observe) {
		observe(0.25, attribute.String(AttrCategory, "NETWORK"))
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
	if _, err := em.AddBreakerStatusCallback(func(observe Observe) {
		observe(1, BreakerAttributes("svc", "open")...)
	}); err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	m, ok := collect(t, reader, MetricErrorRate)
	if !ok {
		t.Fatal("expected error rate gauge to be exported")
	}
	gauge := m.Data.(metricdata.Gauge[float64])
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 0.25 {
		t.Errorf("unexpected gauge points %+v", gauge.DataPoints)
	}

	m, _ = collect(t, reader, MetricBreakerStatus)
	if g := m.Data.(metricdata.Gauge[float64]); len(g.DataPoints) != 1 || g.DataPoints[0].Value != 1 {
		t.Errorf("unexpected breaker gauge %+v", g.DataPoints)
	}

	if err := reg.Unregister(); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	if m, ok := collect(t, reader, MetricErrorRate); ok {
		if g := m.Data.(metricdata.Gauge[float64]); len(g.DataPoints) != 0 {
			t.Errorf("expected no points after unregister, got %+v", g.DataPoints)
		}
	}
}
