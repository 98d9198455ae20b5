// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration for Vigil: instruments,
// attribute conventions, SDK bootstrap and slog configuration.
package telemetry

import (
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Metric attribute keys. They are kept short because they end up as label
// names on most backends.
const (
	AttrCategory       = "category"
	AttrSeverity       = "severity"
	AttrErrorType      = "error_type"
	AttrErrorCode      = "error_code"
	AttrOperation      = "operation"
	AttrComponent      = "component"
	AttrUserID         = "user_id"
	AttrErrorID        = "error_id"
	AttrAction         = "action"
	AttrSuccess        = "success"
	AttrDurationMs     = "duration_ms"
	AttrResolutionType = "resolution_type"
	AttrCurrentRate    = "current_rate"
	AttrTargetRate     = "target_rate"
	AttrBreaker        = "breaker"
	AttrState          = "state"
)

// Span attribute keys.
const (
	AttrSpanBreakerName  = "vigil.breaker.name"
	AttrSpanBreakerState = "vigil.breaker.state"
	AttrSpanErrorID      = "vigil.error.id"
	AttrSpanCategory     = "vigil.error.category"
	AttrSpanFallbackUsed = "vigil.fallback.used"
)

// ResolutionAutomatic tags recoveries performed without operator action.
const ResolutionAutomatic = "automatic"

// contextKeys are copied from the recorder context onto error metrics when present.
var contextKeys = []string{AttrOperation, AttrComponent, AttrUserID}

// ErrorAttributes returns the attributes attached to an error counter increment.
func ErrorAttributes(category, severity, errType string, code any, fields map[string]any) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrCategory, category),
		attribute.String(AttrSeverity, severity),
	}
	if errType != "" {
		attrs = append(attrs, attribute.String(AttrErrorType, errType))
	}
	if code != nil {
		attrs = append(attrs, attribute.String(AttrErrorCode, stringify(code)))
	}
	for _, key := range contextKeys {
		if v, ok := fields[key]; ok && v != nil {
			attrs = append(attrs, attribute.String(key, stringify(v)))
		}
	}
	return attrs
}

// RecoveryAttributes returns the attributes of a recovery counter increment.
func RecoveryAttributes(errorID, action string, success bool, durationMs int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorID, errorID),
		attribute.String(AttrAction, action),
		attribute.Bool(AttrSuccess, success),
		attribute.Int64(AttrDurationMs, durationMs),
	}
}

// RecoveryDurationAttributes returns the attributes of a recovery duration observation.
func RecoveryDurationAttributes(action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAction, action),
		attribute.String(AttrResolutionType, ResolutionAutomatic),
	}
}

// OperationAttributes returns the attributes for the operation-result channel.
// Rates are only attached for SLO evaluations.
func OperationAttributes(operation string, success bool, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrOperation, operation),
		attribute.Bool(AttrSuccess, success),
	}
	return append(attrs, extra...)
}

// SLOAttributes returns the rate attributes of an SLO evaluation.
func SLOAttributes(currentRate, targetRate float64, severity string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(AttrCurrentRate, currentRate),
		attribute.Float64(AttrTargetRate, targetRate),
		attribute.String(AttrSeverity, severity),
	}
}

// BreakerAttributes identifies a breaker on the status gauge.
func BreakerAttributes(name, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBreaker, name),
		attribute.String(AttrState, state),
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
