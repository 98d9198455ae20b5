// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Vigil.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies the failure mode of a Vigil error.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeCircuitOpen indicates a call was short-circuited by an open breaker.
	CodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnauthorized indicates authorization failed.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeUnavailable indicates a downstream dependency is unavailable.
	CodeUnavailable ErrorCode = "UNAVAILABLE"
)

// VigilError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type VigilError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool

	// Status is an HTTP-like status code. It is only set through WithStatus so
	// that classification never sees a code the caller did not provide.
	Status int
}

// Error implements the error interface.
func (e *VigilError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *VigilError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the explicit status code, or 0 when none was set.
func (e *VigilError) HTTPStatus() int {
	return e.Status
}

// ErrorCode returns the code as a plain string.
func (e *VigilError) ErrorCode() string {
	return string(e.Code)
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *VigilError) MarshalJSON() ([]byte, error) {
	type Alias VigilError
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		Status      int    `json:"status,omitempty"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		Status:      e.Status,
		Alias:       (*Alias)(e),
	})
}

// New creates a new VigilError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *VigilError {
	return &VigilError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *VigilError) WithContext(key string, value interface{}) *VigilError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL metrics and traces.
// Returns the error for method chaining.
func (e *VigilError) WithAttribute(key, value string) *VigilError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *VigilError) WithRecoverable(recoverable bool) *VigilError {
	e.Recoverable = recoverable
	return e
}

// WithStatus sets an explicit status code.
// Returns the error for method chaining.
func (e *VigilError) WithStatus(status int) *VigilError {
	e.Status = status
	return e
}

// AsVigilError attempts to convert an error to a VigilError.
// Returns the first VigilError in the chain, or wraps the error otherwise.
func AsVigilError(err error) *VigilError {
	if err == nil {
		return nil
	}
	var ve *VigilError
	if stderrors.As(err, &ve) {
		return ve
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCircuitOpen reports whether err was produced by an open circuit breaker.
func IsCircuitOpen(err error) bool {
	var ve *VigilError
	for err != nil {
		if stderrors.As(err, &ve) {
			if ve.Code == CodeCircuitOpen {
				return true
			}
			err = ve.Err
			continue
		}
		return false
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *VigilError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
