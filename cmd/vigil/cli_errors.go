// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/vigil/pkg/errors"
)

// CLIError wraps VigilError with a hint for the operator.
type CLIError struct {
	*errors.VigilError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ve *errors.VigilError, hint string) *CLIError {
	return &CLIError{VigilError: ve, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.VigilError == nil {
		return "unknown error"
	}
	msg := e.VigilError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the VigilError.
func (e *CLIError) Unwrap() error {
	return e.VigilError
}

// WrapConfigError reports a configuration load failure.
func WrapConfigError(err error, path string) *CLIError {
	ve := errors.New(errors.CodeInvalidInput, "failed to load configuration", err)
	hint := "Check VIGIL_ environment variables and --set overrides"
	if path != "" {
		ve = ve.WithContext("path", path)
		hint = fmt.Sprintf("Check that %s exists and is valid YAML", path)
	}
	return NewCLIError(ve, hint)
}

// WrapServeError reports a failure to start or run a component of serve.
func WrapServeError(err error, component string) *CLIError {
	ve := errors.New(errors.CodeUnavailable, component+" failed", err).WithContext("component", component)
	hint := ""
	switch component {
	case "http server":
		hint = "Is server.addr already in use? Override it with --set server.addr=:PORT"
	case "telemetry":
		hint = "Set telemetry.exporter=none to run without an exporter"
	case "journal":
		hint = "Check journal.dsn or set journal.driver=memory"
	}
	return NewCLIError(ve, hint)
}

type errorOutput struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// printError prints err in text or JSON form.
func printError(w io.Writer, err error, asJSON bool) {
	out := errorOutput{Code: string(errors.CodeInternal), Message: err.Error()}
	if ce, ok := err.(*CLIError); ok && ce.VigilError != nil {
		out = errorOutput{Code: string(ce.Code), Message: ce.VigilError.Error(), Hint: ce.Hint}
	} else if ve := errors.AsVigilError(err); ve != nil {
		out.Code = string(ve.Code)
	}

	if asJSON {
		_ = json.NewEncoder(w).Encode(map[string]errorOutput{"error": out})
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", out.Code, out.Message)
	if out.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", out.Hint)
	}
}
