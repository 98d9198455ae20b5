// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/jllopis/vigil/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the initial backoff delay.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// MaxJitter bounds the random delay added to each backoff step.
	MaxJitter time.Duration

	// IsRecoverable determines if an error should be retried.
	// If nil, isRecoverableDefault is used.
	IsRecoverable func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		MaxJitter:     50 * time.Millisecond,
		IsRecoverable: isRecoverableDefault,
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a new config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a new config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do executes fn with retry logic, returning the last error if all attempts fail.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = isRecoverableDefault
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = time.Millisecond
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(rc.MaxAttempts)),
		retry.Delay(rc.InitialDelay),
		retry.RetryIf(rc.IsRecoverable),
		retry.LastErrorOnly(true),
	}
	if rc.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(rc.MaxDelay))
	}
	if rc.MaxJitter > 0 {
		opts = append(opts, retry.MaxJitter(rc.MaxJitter))
	}

	err := retry.New(opts...).Do(fn)
	if err != nil && ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		return errors.New(errors.CodeTimeout, "context canceled during retry", err).
			WithContext("max_attempts", rc.MaxAttempts)
	}
	return err
}

// DoWithResult executes fn with retry logic, returning both result and error.
func (rc RetryConfig) DoWithResult(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := rc.Do(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// isRecoverableDefault considers errors recoverable based on type.
func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}

	var ve *errors.VigilError
	if stderrors.As(err, &ve) {
		return ve.Recoverable
	}

	// Plain errors are retried; callers can override IsRecoverable for finer control.
	return true
}
