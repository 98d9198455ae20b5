// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is the read side of the monitor the collector scrapes.
type Source interface {
	Statistics() monitor.ErrorStatistics
	EvaluateSLOs() []monitor.SLOResult
}

// Collector exposes monitor state to Prometheus. Values are read at scrape
// time, so nothing has to be kept in sync with the monitor.
type Collector struct {
	source Source

	errorsTotal      *prometheus.Desc
	requestsTotal    *prometheus.Desc
	categoryErrors   *prometheus.Desc
	recentErrors     *prometheus.Desc
	breakerState     *prometheus.Desc
	breakerErrorRate *prometheus.Desc
	breakerFailures  *prometheus.Desc
	breakerRequests  *prometheus.Desc
	sloErrorRate     *prometheus.Desc
	sloTargetRate    *prometheus.Desc
	sloViolated      *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		errorsTotal: prometheus.NewDesc("vigil_errors_total",
			"Total number of recorded errors.", nil, nil),
		requestsTotal: prometheus.NewDesc("vigil_requests_total",
			"Total number of guarded requests.", nil, nil),
		categoryErrors: prometheus.NewDesc("vigil_category_errors_total",
			"Recorded errors by category.", []string{"category"}, nil),
		recentErrors: prometheus.NewDesc("vigil_recent_errors",
			"Number of error records kept in the recent history.", nil, nil),
		breakerState: prometheus.NewDesc("vigil_circuit_breaker_state",
			"Circuit breaker state (0=closed, 0.5=half-open, 1=open).", []string{"breaker", "state"}, nil),
		breakerErrorRate: prometheus.NewDesc("vigil_circuit_breaker_error_rate",
			"Failure ratio within the breaker monitoring window.", []string{"breaker"}, nil),
		breakerFailures: prometheus.NewDesc("vigil_circuit_breaker_consecutive_failures",
			"Consecutive failures counted by the breaker.", []string{"breaker"}, nil),
		breakerRequests: prometheus.NewDesc("vigil_circuit_breaker_requests_total",
			"Calls that reached the breaker.", []string{"breaker"}, nil),
		sloErrorRate: prometheus.NewDesc("vigil_slo_error_rate",
			"Current error rate per SLO category.", []string{"category"}, nil),
		sloTargetRate: prometheus.NewDesc("vigil_slo_target_rate",
			"Target error rate per SLO category.", []string{"category"}, nil),
		sloViolated: prometheus.NewDesc("vigil_slo_violated",
			"1 when the category error rate is above target.", []string{"category", "severity"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.errorsTotal
	ch <- c.requestsTotal
	ch <- c.categoryErrors
	ch <- c.recentErrors
	ch <- c.breakerState
	ch <- c.breakerErrorRate
	ch <- c.breakerFailures
	ch <- c.breakerRequests
	ch <- c.sloErrorRate
	ch <- c.sloTargetRate
	ch <- c.sloViolated
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Statistics()

	ch <- prometheus.MustNewConstMetric(c.errorsTotal, prometheus.CounterValue, float64(stats.TotalErrors))
	ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue, float64(stats.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.recentErrors, prometheus.GaugeValue, float64(len(stats.RecentErrors)))
	for category, count := range stats.CategoryCounts {
		ch <- prometheus.MustNewConstMetric(c.categoryErrors, prometheus.CounterValue, float64(count), string(category))
	}

	for _, b := range stats.CircuitBreakers {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, b.State.Gauge(), b.Name, string(b.State))
		ch <- prometheus.MustNewConstMetric(c.breakerErrorRate, prometheus.GaugeValue, b.ErrorRate, b.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerFailures, prometheus.GaugeValue, float64(b.FailureCount), b.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerRequests, prometheus.CounterValue, float64(b.TotalRequests), b.Name)
	}

	for _, r := range c.source.EvaluateSLOs() {
		ch <- prometheus.MustNewConstMetric(c.sloErrorRate, prometheus.GaugeValue, r.CurrentRate, r.Category)
		ch <- prometheus.MustNewConstMetric(c.sloTargetRate, prometheus.GaugeValue, r.TargetRate, r.Category)
		violated := 0.0
		if !r.Passed {
			violated = 1
		}
		ch <- prometheus.MustNewConstMetric(c.sloViolated, prometheus.GaugeValue, violated, r.Category, string(r.Severity))
	}
}
