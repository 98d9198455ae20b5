// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/telemetry"
)

// OverallCategory is the SLO entry used for categories without a dedicated target.
const OverallCategory = "OVERALL"

// SLOTarget is the error-rate objective of one category.
type SLOTarget struct {
	Category          string  `json:"category" yaml:"category" koanf:"category"`
	Target            float64 `json:"target" yaml:"target" koanf:"target"`
	CriticalThreshold float64 `json:"critical_threshold" yaml:"critical_threshold" koanf:"critical_threshold"`
	TimeWindow        string  `json:"time_window" yaml:"time_window" koanf:"time_window"`
	Description       string  `json:"description" yaml:"description" koanf:"description"`
}

// Validate checks 0 <= target < critical threshold <= 1.
func (t SLOTarget) Validate() error {
	if t.Category == "" {
		return fmt.Errorf("slo target category is required")
	}
	if t.Target < 0 || t.Target > 1 {
		return fmt.Errorf("slo %s: target %.4f out of range [0,1]", t.Category, t.Target)
	}
	if t.CriticalThreshold > 1 {
		return fmt.Errorf("slo %s: critical threshold %.4f out of range [0,1]", t.Category, t.CriticalThreshold)
	}
	if t.CriticalThreshold <= t.Target {
		return fmt.Errorf("slo %s: critical threshold %.4f must exceed target %.4f", t.Category, t.CriticalThreshold, t.Target)
	}
	return nil
}

// DefaultSLOTargets returns the built-in targets for every category plus OVERALL.
func DefaultSLOTargets() []SLOTarget {
	return []SLOTarget{
		{Category: string(classify.CategoryNetwork), Target: 0.05, CriticalThreshold: 0.10, TimeWindow: "5m", Description: "Network request failures"},
		{Category: string(classify.CategoryWebSocket), Target: 0.05, CriticalThreshold: 0.10, TimeWindow: "5m", Description: "WebSocket connection failures"},
		{Category: string(classify.CategoryAPI), Target: 0.02, CriticalThreshold: 0.05, TimeWindow: "5m", Description: "Upstream API errors"},
		{Category: string(classify.CategoryParsing), Target: 0.01, CriticalThreshold: 0.03, TimeWindow: "15m", Description: "Payload parsing failures"},
		{Category: string(classify.CategoryAuth), Target: 0.005, CriticalThreshold: 0.01, TimeWindow: "15m", Description: "Authentication failures"},
		{Category: string(classify.CategoryThirdPartyExt), Target: 0.10, CriticalThreshold: 0.20, TimeWindow: "15m", Description: "Third-party extension failures"},
		{Category: string(classify.CategoryRender), Target: 0.01, CriticalThreshold: 0.05, TimeWindow: "15m", Description: "Rendering failures"},
		{Category: string(classify.CategoryStorage), Target: 0.01, CriticalThreshold: 0.05, TimeWindow: "1h", Description: "Local storage failures"},
		{Category: OverallCategory, Target: 0.05, CriticalThreshold: 0.10, TimeWindow: "5m", Description: "All recorded errors"},
	}
}

// SLOSeverity grades an SLO evaluation.
type SLOSeverity string

const (
	SLOOk       SLOSeverity = "ok"
	SLOWarning  SLOSeverity = "warning"
	SLOCritical SLOSeverity = "critical"
)

// SLOResult is the outcome of comparing one category against its target.
type SLOResult struct {
	Category          string      `json:"category" yaml:"category"`
	CurrentRate       float64     `json:"current_rate" yaml:"current_rate"`
	TargetRate        float64     `json:"target_rate" yaml:"target_rate"`
	CriticalThreshold float64     `json:"critical_threshold" yaml:"critical_threshold"`
	Passed            bool        `json:"passed" yaml:"passed"`
	Severity          SLOSeverity `json:"severity" yaml:"severity"`
}

// CheckErrorRateSLOs compares the rate of category against its target, logs
// violations and reports the outcome on the operation-result channel. It is
// called after every recorded error and never fails.
func (m *Monitor) CheckErrorRateSLOs(ctx context.Context, category classify.Category) SLOResult {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	count, requests := m.categoryCounts[category], m.totalRequests
	m.mu.Unlock()

	result := m.evaluate(string(category), count, requests)
	m.report(ctx, result)
	return result
}

// CheckAllSLOs checks every category and the overall rate, including
// categories that saw no error since the last check.
func (m *Monitor) CheckAllSLOs(ctx context.Context) []SLOResult {
	results := m.EvaluateSLOs()
	for _, result := range results {
		m.report(ctx, result)
	}
	return results
}

// EvaluateSLOs computes the SLO results for every category and OVERALL
// without logging or emitting metrics.
func (m *Monitor) EvaluateSLOs() []SLOResult {
	m.mu.Lock()
	counts := make(map[classify.Category]int, len(m.categoryCounts))
	for category, count := range m.categoryCounts {
		counts[category] = count
	}
	total, requests := m.totalErrors, m.totalRequests
	m.mu.Unlock()

	categories := classify.Categories()
	results := make([]SLOResult, 0, len(categories)+1)
	for _, category := range categories {
		results = append(results, m.evaluate(string(category), counts[category], requests))
	}
	return append(results, m.evaluate(OverallCategory, total, requests))
}

func (m *Monitor) evaluate(category string, count, requests int) SLOResult {
	target := m.targetFor(category)
	rate := float64(count) / float64(max(requests, 1))

	result := SLOResult{
		Category:          category,
		CurrentRate:       rate,
		TargetRate:        target.Target,
		CriticalThreshold: target.CriticalThreshold,
		Passed:            rate <= target.Target,
		Severity:          SLOOk,
	}
	switch {
	case rate > target.CriticalThreshold:
		result.Severity = SLOCritical
	case rate > target.Target:
		result.Severity = SLOWarning
	}
	return result
}

func (m *Monitor) report(ctx context.Context, result SLOResult) {
	attrs := []any{
		slog.String("category", result.Category),
		slog.Float64("current_rate", result.CurrentRate),
		slog.Float64("target_rate", result.TargetRate),
		slog.String("severity", string(result.Severity)),
	}
	switch result.Severity {
	case SLOCritical:
		m.logger.ErrorContext(ctx, "error rate SLO critically violated",
			append(attrs, slog.Float64("critical_threshold", result.CriticalThreshold))...)
	case SLOWarning:
		m.logger.WarnContext(ctx, "error rate SLO violated", attrs...)
	}
	if result.Severity != SLOOk {
		m.emit(ctx, EventSLOViolation, map[string]any{
			"category":     result.Category,
			"current_rate": result.CurrentRate,
			"target_rate":  result.TargetRate,
			"severity":     string(result.Severity),
		})
	}

	m.safely(ctx, "emit SLO result", func() error {
		m.metrics.RecordOperationResult(ctx, telemetry.OperationAttributes(
			"error_rate_slo_"+result.Category,
			result.Passed,
			telemetry.SLOAttributes(result.CurrentRate, result.TargetRate, string(result.Severity))...,
		))
		return nil
	})
}

func (m *Monitor) targetFor(category string) SLOTarget {
	m.sloMu.RLock()
	defer m.sloMu.RUnlock()
	if target, ok := m.sloTargets[category]; ok {
		return target
	}
	if target, ok := m.sloTargets[OverallCategory]; ok {
		return target
	}
	for _, target := range DefaultSLOTargets() {
		if target.Category == OverallCategory {
			return target
		}
	}
	return SLOTarget{}
}

// SLOTargets returns the configured targets sorted by category.
func (m *Monitor) SLOTargets() []SLOTarget {
	m.sloMu.RLock()
	out := make([]SLOTarget, 0, len(m.sloTargets))
	for _, target := range m.sloTargets {
		out = append(out, target)
	}
	m.sloMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// SetSLOTargets replaces the configured targets. Nothing changes if any
// target is invalid.
func (m *Monitor) SetSLOTargets(targets []SLOTarget) error {
	indexed, err := indexTargets(targets)
	if err != nil {
		return err
	}
	m.sloMu.Lock()
	m.sloTargets = indexed
	m.sloMu.Unlock()
	return nil
}

// SetLatencyTargets replaces the per-operation latency objectives.
func (m *Monitor) SetLatencyTargets(targets map[string]time.Duration) {
	latency := copyLatency(targets)
	m.sloMu.Lock()
	m.latencyTargets = latency
	m.sloMu.Unlock()
}

// RecordOperation reports a guarded call on the operation-result channel and
// its latency histogram. A call slower than its latency target counts as failed.
func (m *Monitor) RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.sloMu.RLock()
	limit, hasLimit := m.latencyTargets[operation]
	m.sloMu.RUnlock()

	passed := success
	if hasLimit && duration > limit {
		passed = false
		m.logger.WarnContext(ctx, "latency SLO violated",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.Duration("target", limit),
		)
	}

	ms := float64(duration) / float64(time.Millisecond)
	m.safely(ctx, "emit operation result", func() error {
		m.metrics.RecordOperationDuration(ctx, ms, telemetry.OperationAttributes(operation, success))
		m.metrics.RecordOperationResult(ctx, telemetry.OperationAttributes(operation, passed))
		return nil
	})
}

// StartSLOTicker checks every SLO at the given interval until ctx is done or
// the returned stop function is called. stop waits for the goroutine to exit.
func (m *Monitor) StartSLOTicker(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.safely(ctx, "periodic SLO check", func() error {
					m.CheckAllSLOs(ctx)
					return nil
				})
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func indexTargets(targets []SLOTarget) (map[string]SLOTarget, error) {
	indexed := make(map[string]SLOTarget, len(targets))
	for _, target := range targets {
		if err := target.Validate(); err != nil {
			return nil, err
		}
		indexed[target.Category] = target
	}
	return indexed, nil
}

func copyLatency(targets map[string]time.Duration) map[string]time.Duration {
	out := make(map[string]time.Duration, len(targets))
	for op, d := range targets {
		out[op] = d
	}
	return out
}
