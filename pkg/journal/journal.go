// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists error records and their recoveries beyond the
// bounded in-memory history of a monitor.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/oklog/ulid/v2"
)

// ErrUnknownError is returned when a recovery refers to an error that was
// never journaled in the current run.
var ErrUnknownError = errors.New("journal: unknown error id")

// Entry is a journaled error record.
type Entry struct {
	// ID is a ULID, so entries sort by creation time.
	ID          string              `json:"id" yaml:"id"`
	RunID       string              `json:"run_id" yaml:"run_id"`
	Record      monitor.ErrorRecord `json:"record" yaml:"record"`
	RecoveredAt *time.Time          `json:"recovered_at,omitempty" yaml:"recovered_at,omitempty"`
}

// Filter limits List queries.
type Filter struct {
	RunID    string
	Category string
	ErrorID  string
	Limit    int
}

// Store is a monitor.Journal that can be queried.
type Store interface {
	monitor.Journal
	List(ctx context.Context, filter Filter) ([]Entry, error)
	RunID() string
}

// NewRunID returns a fresh identifier for one process run. Error ids restart
// with every run, so entries are scoped by it.
func NewRunID() string {
	return uuid.NewString()
}

func newEntryID() string {
	return ulid.Make().String()
}

// Memory keeps entries in memory.
type Memory struct {
	mu      sync.Mutex
	runID   string
	entries []Entry
}

// NewMemory returns an in-memory journal. An empty runID gets a fresh one.
func NewMemory(runID string) *Memory {
	if runID == "" {
		runID = NewRunID()
	}
	return &Memory{runID: runID}
}

// RunID returns the run the journal writes to.
func (j *Memory) RunID() string {
	return j.runID
}

// Append stores rec.
func (j *Memory) Append(_ context.Context, rec monitor.ErrorRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, Entry{ID: newEntryID(), RunID: j.runID, Record: rec})
	return nil
}

// UpdateRecovery annotates the newest entry of the current run with errorID.
func (j *Memory) UpdateRecovery(_ context.Context, errorID, action string, success bool, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := &j.entries[i]
		if e.RunID != j.runID || e.Record.ID != errorID {
			continue
		}
		e.Record.RecoveryAttempted = true
		e.Record.RecoveryAction = &action
		e.Record.RecoverySuccess = &success
		recoveredAt := at.UTC()
		e.RecoveredAt = &recoveredAt
		return nil
	}
	return ErrUnknownError
}

// List returns entries matching filter in insertion order.
func (j *Memory) List(_ context.Context, filter Filter) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if filter.RunID != "" && e.RunID != filter.RunID {
			continue
		}
		if filter.Category != "" && string(e.Record.Category) != filter.Category {
			continue
		}
		if filter.ErrorID != "" && e.Record.ID != filter.ErrorID {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
