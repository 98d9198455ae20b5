// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/jllopis/vigil/pkg/errors"
)

// WithDeadline bounds op to d. When the deadline passes first the call
// returns a CodeTimeout VigilError wrapping context.DeadlineExceeded, which
// classifies as a network timeout. A zero d returns op unchanged.
//
// op keeps running in the background until it observes the cancelled
// context; operations should honour ctx.
func WithDeadline(op Operation, d time.Duration) Operation {
	if d <= 0 {
		return op
	}
	return func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			value any
			err   error
		}
		done := make(chan result, 1)
		go func() {
			value, err := op(ctx)
			done <- result{value, err}
		}()

		select {
		case <-ctx.Done():
			return nil, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
				WithContext("timeout", d.String()).
				WithRecoverable(true)
		case res := <-done:
			return res.value, res.err
		}
	}
}
