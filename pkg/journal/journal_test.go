// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func sampleRecord(id string, category classify.Category) monitor.ErrorRecord {
	return monitor.ErrorRecord{
		ID:        id,
		Category:  category,
		Severity:  classify.SeverityOf(category),
		Message:   "fetch failed",
		Context:   map[string]any{"operation": "load"},
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func openTestSQLite(t *testing.T, name, runID string) *SQLite {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	j, err := NewSQLite(db, runID)
	require.NoError(t, err)
	return j
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory("run-1"),
		"sqlite": openTestSQLite(t, "journal_"+t.Name(), "run-1"),
	}
}

func TestAppendAndList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, sampleRecord("NETWORK_1", classify.CategoryNetwork)))
			require.NoError(t, store.Append(ctx, sampleRecord("API_1", classify.CategoryAPI)))

			all, err := store.List(ctx, Filter{RunID: "run-1"})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "NETWORK_1", all[0].Record.ID)
			assert.Equal(t, "run-1", all[0].RunID)
			assert.NotEmpty(t, all[0].ID)
			assert.Equal(t, classify.SeverityHigh, all[0].Record.Severity)
			assert.Equal(t, "load", all[0].Record.Context["operation"])
			assert.False(t, all[0].Record.RecoveryAttempted)
			assert.Nil(t, all[0].Record.RecoveryAction)

			api, err := store.List(ctx, Filter{Category: "API"})
			require.NoError(t, err)
			require.Len(t, api, 1)
			assert.Equal(t, "API_1", api[0].Record.ID)

			limited, err := store.List(ctx, Filter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestUpdateRecovery(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, sampleRecord("NETWORK_1", classify.CategoryNetwork)))

			at := time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)
			require.NoError(t, store.UpdateRecovery(ctx, "NETWORK_1", "retry", true, at))

			entries, err := store.List(ctx, Filter{ErrorID: "NETWORK_1"})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			rec := entries[0].Record
			assert.True(t, rec.RecoveryAttempted)
			require.NotNil(t, rec.RecoveryAction)
			assert.Equal(t, "retry", *rec.RecoveryAction)
			require.NotNil(t, rec.RecoverySuccess)
			assert.True(t, *rec.RecoverySuccess)
			require.NotNil(t, entries[0].RecoveredAt)
			assert.True(t, entries[0].RecoveredAt.Equal(at))

			err = store.UpdateRecovery(ctx, "MISSING_1", "retry", true, at)
			assert.True(t, errors.Is(err, ErrUnknownError))
		})
	}
}

func TestRunIDs(t *testing.T) {
	assert.NotEmpty(t, NewMemory("").RunID())
	assert.NotEqual(t, NewRunID(), NewRunID())

	db, err := sql.Open("sqlite", "file:journal_runs?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()
	first, err := NewSQLite(db, "run-a")
	require.NoError(t, err)
	second, err := NewSQLite(db, "run-b")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Append(ctx, sampleRecord("NETWORK_1", classify.CategoryNetwork)))
	require.NoError(t, second.Append(ctx, sampleRecord("NETWORK_1", classify.CategoryNetwork)))
	require.NoError(t, second.UpdateRecovery(ctx, "NETWORK_1", "fallback", false, time.Now()))

	entries, err := first.List(ctx, Filter{RunID: "run-a"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Record.RecoveryAttempted, "recovery of another run must not leak")
}

func TestOpenSQLite(t *testing.T) {
	j, err := OpenSQLite("file:journal_open?mode=memory&cache=shared", "")
	require.NoError(t, err)
	assert.NotEmpty(t, j.RunID())
	require.NoError(t, j.Close())
}

func TestJournalWithMonitor(t *testing.T) {
	j := NewMemory("")
	m, err := monitor.New(monitor.WithJournal(j), monitor.WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	res := m.RecordError(ctx, errors.New("invalid json payload"), nil)
	m.RecordRecovery(ctx, res.ErrorID, "skip", true, time.Millisecond)

	entries, err := j.List(ctx, Filter{ErrorID: res.ErrorID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, classify.CategoryParsing, entries[0].Record.Category)
	assert.True(t, entries[0].Record.RecoveryAttempted)
}
