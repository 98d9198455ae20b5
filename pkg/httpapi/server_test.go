// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/health"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/jllopis/vigil/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMonitor(t *testing.T, opts ...monitor.Option) *monitor.Monitor {
	t.Helper()
	opts = append([]monitor.Option{
		monitor.WithMeterProvider(noop.NewMeterProvider()),
		monitor.WithLogger(discardLogger()),
	}, opts...)
	m, err := monitor.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newServer(t *testing.T, m *monitor.Monitor, opts ...Option) *Server {
	t.Helper()
	s, err := New(m, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestCollector(t *testing.T) {
	m := newMonitor(t)
	ctx := context.Background()
	for range 4 {
		m.RecordRequest()
	}
	m.RecordError(ctx, errors.New("fetch failed"), nil)
	m.RecordErrorInfo(ctx, classify.ErrorInfo{Message: "server error", Code: 500}, nil)
	m.CircuitBreaker("db").Open()

	c := NewCollector(m)
	expected := `
# HELP vigil_errors_total Total number of recorded errors.
# TYPE vigil_errors_total counter
vigil_errors_total 2
# HELP vigil_requests_total Total number of guarded requests.
# TYPE vigil_requests_total counter
vigil_requests_total 4
# HELP vigil_category_errors_total Recorded errors by category.
# TYPE vigil_category_errors_total counter
vigil_category_errors_total{category="API"} 1
vigil_category_errors_total{category="NETWORK"} 1
# HELP vigil_circuit_breaker_state Circuit breaker state (0=closed, 0.5=half-open, 1=open).
# TYPE vigil_circuit_breaker_state gauge
vigil_circuit_breaker_state{breaker="db",state="open"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"vigil_errors_total", "vigil_requests_total", "vigil_category_errors_total", "vigil_circuit_breaker_state")
	require.NoError(t, err)

	// 8 categories plus OVERALL.
	assert.Equal(t, 9, testutil.CollectAndCount(c, "vigil_slo_error_rate"))
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP vigil_slo_violated 1 when the category error rate is above target.
# TYPE vigil_slo_violated gauge
vigil_slo_violated{category="API",severity="critical"} 1
vigil_slo_violated{category="AUTH",severity="ok"} 0
vigil_slo_violated{category="NETWORK",severity="critical"} 1
vigil_slo_violated{category="OVERALL",severity="critical"} 1
vigil_slo_violated{category="PARSING",severity="ok"} 0
vigil_slo_violated{category="RENDER",severity="ok"} 0
vigil_slo_violated{category="STORAGE",severity="ok"} 0
vigil_slo_violated{category="THIRD_PARTY_EXT",severity="ok"} 0
vigil_slo_violated{category="WEBSOCKET",severity="ok"} 0
`), "vigil_slo_violated"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := newMonitor(t)
	m.RecordRequest()
	s := newServer(t, m, WithPrometheusRegistry(prometheus.NewRegistry()))

	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vigil_requests_total 1")
}

func TestSharedRegistryRejectsSecondServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newMonitor(t)
	_ = newServer(t, m, WithPrometheusRegistry(registry))

	_, err := New(m, WithPrometheusRegistry(registry))
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	m := newMonitor(t)
	s := newServer(t, m)

	rec := do(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, health.Healthy, body.Status)
	assert.Len(t, body.Components, 2)

	m.CircuitBreaker("payments").Open()
	rec = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, health.Unhealthy, body.Status)
}

func TestHealthzCustomProvider(t *testing.T) {
	provider := health.NewProvider()
	provider.Register("cache", health.Static(health.Degraded, "warming up"))
	s := newServer(t, newMonitor(t), WithHealthProvider(provider))

	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"DEGRADED"`)
	assert.Same(t, provider, s.Health())
}

func TestStatsAndReset(t *testing.T) {
	m := newMonitor(t)
	s := newServer(t, m)
	m.RecordRequest()
	res := m.RecordError(context.Background(), errors.New("invalid json"), map[string]any{"operation": "decode"})

	rec := do(t, s, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats monitor.ErrorStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 1, stats.CategoryCounts[classify.CategoryParsing])
	require.Len(t, stats.RecentErrors, 1)
	assert.Equal(t, res.ErrorID, stats.RecentErrors[0].ID)

	rec = do(t, s, http.MethodGet, "/errors/"+res.ErrorID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"decode"`)

	rec = do(t, s, http.MethodGet, "/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodPost, "/reset")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, m.Statistics().TotalErrors)

	rec = do(t, s, http.MethodGet, "/errors/"+res.ErrorID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSLOEndpoint(t *testing.T) {
	s := newServer(t, newMonitor(t))

	rec := do(t, s, http.MethodGet, "/slo")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []monitor.SLOResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 9)
	assert.Equal(t, monitor.OverallCategory, results[len(results)-1].Category)
}

func TestBreakerEndpoints(t *testing.T) {
	m := newMonitor(t)
	s := newServer(t, m)
	m.CircuitBreaker("db")
	m.CircuitBreaker("api")

	rec := do(t, s, http.MethodGet, "/breakers")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []resilience.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "api", statuses[0].Name)

	rec = do(t, s, http.MethodGet, "/breakers/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/breakers/db/open")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resilience.StateOpen, m.CircuitBreaker("db").State())

	rec = do(t, s, http.MethodGet, "/breakers/db")
	require.Equal(t, http.StatusOK, rec.Code)
	var status resilience.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, resilience.StateOpen, status.State)

	rec = do(t, s, http.MethodPost, "/breakers/db/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resilience.StateClosed, m.CircuitBreaker("db").State())

	rec = do(t, s, http.MethodPost, "/breakers/missing/reset")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsRouteOnlyWhenConfigured(t *testing.T) {
	s := newServer(t, newMonitor(t))
	rec := do(t, s, http.MethodGet, "/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
