// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/monitor"
	_ "modernc.org/sqlite"
)

// SQLite persists entries in a SQLite database.
type SQLite struct {
	db     *sql.DB
	runID  string
	ownsDB bool
}

// NewSQLite creates a SQLite-backed journal on db and ensures the schema.
// An empty runID gets a fresh one.
func NewSQLite(db *sql.DB, runID string) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureJournalSchema(db); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	if runID == "" {
		runID = NewRunID()
	}
	return &SQLite{db: db, runID: runID}, nil
}

// OpenSQLite opens dsn with the sqlite driver. Close releases the database.
func OpenSQLite(dsn, runID string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	j, err := NewSQLite(db, runID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.ownsDB = true
	return j, nil
}

// Close closes the database when it was opened by OpenSQLite.
func (j *SQLite) Close() error {
	if !j.ownsDB {
		return nil
	}
	return j.db.Close()
}

// RunID returns the run the journal writes to.
func (j *SQLite) RunID() string {
	return j.runID
}

// Append stores rec.
func (j *SQLite) Append(ctx context.Context, rec monitor.ErrorRecord) error {
	contextJSON, err := encodeContext(rec.Context)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO vigil_error_journal (
			id, run_id, error_id, category, severity, message, context_json, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		newEntryID(),
		j.runID,
		rec.ID,
		string(rec.Category),
		rec.Severity.String(),
		rec.Message,
		contextJSON,
		rec.Timestamp,
	)
	return err
}

// UpdateRecovery annotates the entries of the current run with errorID.
func (j *SQLite) UpdateRecovery(ctx context.Context, errorID, action string, success bool, at time.Time) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE vigil_error_journal
		SET recovery_attempted = 1, recovery_action = ?, recovery_success = ?, recovered_at = ?
		WHERE run_id = ? AND error_id = ?
	`, action, success, at.UTC().UnixMilli(), j.runID, errorID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownError
	}
	return nil
}

// List returns entries matching filter ordered by id.
func (j *SQLite) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, run_id, error_id, category, severity, message, context_json, occurred_at,
			recovery_attempted, recovery_action, recovery_success, recovered_at
		FROM vigil_error_journal
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Category != "" {
		addFilter("category = ?", filter.Category)
	}
	if filter.ErrorID != "" {
		addFilter("error_id = ?", filter.ErrorID)
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry       Entry
			category    string
			severity    string
			contextJSON sql.NullString
			action      sql.NullString
			success     sql.NullBool
			recoveredAt sql.NullInt64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.Record.ID,
			&category,
			&severity,
			&entry.Record.Message,
			&contextJSON,
			&entry.Record.Timestamp,
			&entry.Record.RecoveryAttempted,
			&action,
			&success,
			&recoveredAt,
		); err != nil {
			return nil, err
		}
		entry.Record.Category = classify.Category(category)
		entry.Record.Severity, _ = classify.ParseSeverity(severity)
		if contextJSON.Valid && contextJSON.String != "" {
			if fields, err := decodeContext(contextJSON.String); err == nil {
				entry.Record.Context = fields
			}
		}
		if action.Valid {
			entry.Record.RecoveryAction = &action.String
		}
		if success.Valid {
			entry.Record.RecoverySuccess = &success.Bool
		}
		if recoveredAt.Valid {
			t := time.UnixMilli(recoveredAt.Int64).UTC()
			entry.RecoveredAt = &t
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func ensureJournalSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vigil_error_journal (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			error_id TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			context_json TEXT,
			occurred_at INTEGER NOT NULL,
			recovery_attempted INTEGER NOT NULL DEFAULT 0,
			recovery_action TEXT,
			recovery_success INTEGER,
			recovered_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_vigil_journal_run ON vigil_error_journal(run_id, error_id);
		CREATE INDEX IF NOT EXISTS idx_vigil_journal_category ON vigil_error_journal(category);
	`)
	return err
}

func encodeContext(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return string(raw), nil
}

func decodeContext(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
