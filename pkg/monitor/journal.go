// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"time"
)

// Journal persists error records beyond the in-memory history. The history
// stays the source of truth for statistics; journal failures are only logged.
type Journal interface {
	Append(ctx context.Context, rec ErrorRecord) error
	UpdateRecovery(ctx context.Context, errorID, action string, success bool, at time.Time) error
}
