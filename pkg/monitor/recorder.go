// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorRecord is one recorded failure. Only the recovery fields change after
// the record is created.
type ErrorRecord struct {
	ID                string            `json:"id" yaml:"id"`
	Category          classify.Category `json:"category" yaml:"category"`
	Severity          classify.Severity `json:"severity" yaml:"severity"`
	Message           string            `json:"message" yaml:"message"`
	Context           map[string]any    `json:"context,omitempty" yaml:"context,omitempty"`
	Timestamp         int64             `json:"timestamp" yaml:"timestamp"`
	RecoveryAttempted bool              `json:"recovery_attempted" yaml:"recovery_attempted"`
	RecoveryAction    *string           `json:"recovery_action" yaml:"recovery_action"`
	RecoverySuccess   *bool             `json:"recovery_success" yaml:"recovery_success"`
}

// Time returns the record timestamp as a time.Time.
func (r ErrorRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

func (r *ErrorRecord) clone() ErrorRecord {
	out := *r
	out.Context = copyFields(r.Context)
	if r.RecoveryAction != nil {
		action := *r.RecoveryAction
		out.RecoveryAction = &action
	}
	if r.RecoverySuccess != nil {
		success := *r.RecoverySuccess
		out.RecoverySuccess = &success
	}
	return out
}

// RecordResult is returned to the caller of RecordError.
type RecordResult struct {
	ErrorID         string            `json:"error_id"`
	Category        classify.Category `json:"category"`
	Severity        classify.Severity `json:"severity"`
	RecoveryActions []string          `json:"recovery_actions"`
}

// RecordError classifies err, stores it in the bounded history, emits the
// error counter and checks the category SLO. It never fails: problems in the
// metrics sink, journal or SLO check are logged and swallowed.
func (m *Monitor) RecordError(ctx context.Context, err error, fields classify.Context) RecordResult {
	return m.RecordErrorInfo(ctx, classify.Describe(err), fields)
}

// RecordErrorInfo is RecordError for callers that already hold an ErrorInfo.
func (m *Monitor) RecordErrorInfo(ctx context.Context, info classify.ErrorInfo, fields classify.Context) RecordResult {
	if ctx == nil {
		ctx = context.Background()
	}
	category := classify.Classify(info, fields)
	meta := classify.Metadata(category)
	now := m.now()

	rec := &ErrorRecord{
		Category:  category,
		Severity:  meta.Severity,
		Message:   info.Message,
		Context:   copyFields(fields),
		Timestamp: now.UnixMilli(),
	}

	m.mu.Lock()
	rec.ID = m.nextIDLocked(category, rec.Timestamp)
	m.history = append(m.history, rec)
	if over := len(m.history) - m.historySize; over > 0 {
		clear(m.history[:over])
		m.history = m.history[over:]
	}
	m.totalErrors++
	m.categoryCounts[category]++
	snapshot := rec.clone()
	m.mu.Unlock()

	result := RecordResult{
		ErrorID:         rec.ID,
		Category:        category,
		Severity:        meta.Severity,
		RecoveryActions: meta.RecoveryActions,
	}

	m.safely(ctx, "emit error metric", func() error {
		m.metrics.RecordError(ctx, telemetry.ErrorAttributes(
			string(category), meta.Severity.String(), info.Name, info.Code, fields,
		))
		return nil
	})

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("vigil.error.recorded", trace.WithAttributes(
			attribute.String(telemetry.AttrSpanErrorID, rec.ID),
			attribute.String(telemetry.AttrSpanCategory, string(category)),
		))
	}

	m.logger.DebugContext(ctx, "error recorded",
		slog.String("error_id", rec.ID),
		slog.String("category", string(category)),
		slog.String("severity", meta.Severity.String()),
		slog.String("message", info.Message),
	)

	if m.journal != nil {
		m.safely(ctx, "journal append", func() error {
			return m.journal.Append(ctx, snapshot)
		})
	}

	m.emit(ctx, EventErrorRecorded, map[string]any{
		"error_id": rec.ID,
		"category": string(category),
		"severity": meta.Severity.String(),
		"message":  info.Message,
	})

	m.safely(ctx, "check error rate SLO", func() error {
		m.CheckErrorRateSLOs(ctx, category)
		return nil
	})
	return result
}

// nextIDLocked builds <CATEGORY>_<unixMillis>. The millisecond part is a
// per-category high-water mark: a record at or before it, in the same
// millisecond or after the clock stepped back, gets a _<n> suffix on the mark.
func (m *Monitor) nextIDLocked(category classify.Category, millis int64) string {
	if last, ok := m.lastMillis[category]; !ok || millis > last {
		m.lastMillis[category] = millis
		m.sameMillis[category] = 0
		return fmt.Sprintf("%s_%d", category, millis)
	}
	m.sameMillis[category]++
	return fmt.Sprintf("%s_%d_%d", category, m.lastMillis[category], m.sameMillis[category])
}

// RecordRequest counts one request against the SLO denominators.
func (m *Monitor) RecordRequest() {
	m.mu.Lock()
	m.totalRequests++
	m.mu.Unlock()
}

func copyFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
