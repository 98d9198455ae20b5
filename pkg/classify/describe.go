// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorInfo is the shape the classifier works on. Code holds an int, a string
// or nil.
type ErrorInfo struct {
	Message string
	Code    any
	Name    string
}

// Context carries caller-provided hints such as component, operation or user_id.
type Context map[string]any

const unknownMessage = "unknown error"

// FromString builds an ErrorInfo from a bare message.
func FromString(msg string) ErrorInfo {
	if msg == "" {
		msg = unknownMessage
	}
	return ErrorInfo{Message: msg}
}

// Describe converts a Go error into an ErrorInfo. Codes come from the first
// error in the chain exposing HTTPStatus() int or ErrorCode() string.
func Describe(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Message: unknownMessage}
	}
	info := ErrorInfo{Message: err.Error(), Name: errorName(err)}
	if info.Message == "" {
		info.Message = unknownMessage
	}

	// A status anywhere in the chain beats a symbolic code, so a circuit-open
	// error wrapping a 503 still reads as 503.
	var code string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if s, ok := e.(interface{ HTTPStatus() int }); ok && s.HTTPStatus() != 0 {
			info.Code = s.HTTPStatus()
			return info
		}
		if c, ok := e.(interface{ ErrorCode() string }); ok && code == "" {
			code = c.ErrorCode()
		}
	}
	if code != "" {
		info.Code = code
	}
	return info
}

func errorName(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NameSyntax
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NameTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NameTimeout
		}
		return NameNetwork
	}
	name := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(name, "*")
}

// Names assigned by Describe to well-known Go error types.
const (
	NameSyntax  = "SyntaxError"
	NameTimeout = "TimeoutError"
	NameNetwork = "NetworkError"
)
