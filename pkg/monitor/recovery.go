// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/resilience"
	"github.com/jllopis/vigil/pkg/telemetry"
)

// RecordRecovery reports the outcome of a remediation attempt for errorID.
// Metrics are always emitted. The stored record is annotated only while it is
// still in the bounded history; an evicted record is skipped silently.
func (m *Monitor) RecordRecovery(ctx context.Context, errorID, action string, success bool, duration time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}

	m.safely(ctx, "emit recovery metric", func() error {
		m.metrics.RecordRecovery(ctx,
			telemetry.RecoveryAttributes(errorID, action, success, duration.Milliseconds()),
			duration.Seconds(),
			telemetry.RecoveryDurationAttributes(action),
		)
		return nil
	})

	m.mu.Lock()
	found := false
	if rec := m.findLocked(errorID); rec != nil {
		rec.RecoveryAttempted = true
		rec.RecoveryAction = &action
		rec.RecoverySuccess = &success
		found = true
	}
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "recovery recorded",
		slog.String("error_id", errorID),
		slog.String("action", action),
		slog.Bool("success", success),
		slog.Duration("duration", duration),
		slog.Bool("in_history", found),
	)

	if m.journal != nil {
		m.safely(ctx, "journal recovery", func() error {
			return m.journal.UpdateRecovery(ctx, errorID, action, success, m.now())
		})
	}

	m.emit(ctx, EventRecovery, map[string]any{
		"error_id":    errorID,
		"action":      action,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	})
}

// RetryWithRecovery retries fn according to cfg and records the outcome as a
// retry recovery of errorID. The error of the last attempt is returned.
func (m *Monitor) RetryWithRecovery(ctx context.Context, errorID string, cfg resilience.RetryConfig, fn func() error) error {
	start := m.now()
	err := cfg.Do(ctx, fn)
	m.RecordRecovery(ctx, errorID, classify.ActionRetry, err == nil, m.now().Sub(start))
	return err
}
