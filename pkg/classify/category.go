// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package classify maps runtime failures to a fixed set of error categories,
// each carrying a default severity and the recovery actions worth attempting.
package classify

import "fmt"

// Category is the resolved class of a failure.
type Category string

const (
	CategoryNetwork       Category = "NETWORK"
	CategoryWebSocket     Category = "WEBSOCKET"
	CategoryAPI           Category = "API"
	CategoryParsing       Category = "PARSING"
	CategoryAuth          Category = "AUTH"
	CategoryThirdPartyExt Category = "THIRD_PARTY_EXT"
	CategoryRender        Category = "RENDER"
	CategoryStorage       Category = "STORAGE"
)

// Severity ranks how much a failure hurts the user.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Level returns the numeric level of the severity (0-3).
func (s Severity) Level() int {
	return int(s)
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", text)
	}
	*s = parsed
	return nil
}

// ParseSeverity resolves a severity name.
func ParseSeverity(name string) (Severity, bool) {
	switch name {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	}
	return SeverityLow, false
}

// Recovery actions suggested by the category metadata.
const (
	ActionRetry          = "retry"
	ActionFallback       = "fallback"
	ActionReconnect      = "reconnect"
	ActionCacheFallback  = "cache-fallback"
	ActionSkip           = "skip"
	ActionDefaultValue   = "default-value"
	ActionReauthenticate = "reauthenticate"
	ActionLogout         = "logout"
	ActionDisableFeature = "disable-feature"
	ActionRemount        = "remount"
	ActionIgnore         = "ignore"
	ActionClearAndRetry  = "clear-and-retry"
)

// Info is the static metadata attached to a category.
type Info struct {
	Severity        Severity
	RecoveryActions []string
}

var categoryInfo = map[Category]Info{
	CategoryNetwork:       {SeverityHigh, []string{ActionRetry, ActionFallback}},
	CategoryWebSocket:     {SeverityHigh, []string{ActionReconnect, ActionFallback}},
	CategoryAPI:           {SeverityMedium, []string{ActionRetry, ActionCacheFallback}},
	CategoryParsing:       {SeverityLow, []string{ActionSkip, ActionDefaultValue}},
	CategoryAuth:          {SeverityCritical, []string{ActionReauthenticate, ActionLogout}},
	CategoryThirdPartyExt: {SeverityMedium, []string{ActionRetry, ActionDisableFeature}},
	CategoryRender:        {SeverityLow, []string{ActionRemount, ActionIgnore}},
	CategoryStorage:       {SeverityMedium, []string{ActionRetry, ActionClearAndRetry}},
}

var orderedCategories = []Category{
	CategoryNetwork,
	CategoryWebSocket,
	CategoryAPI,
	CategoryParsing,
	CategoryAuth,
	CategoryThirdPartyExt,
	CategoryRender,
	CategoryStorage,
}

// Categories returns every category in a stable order.
func Categories() []Category {
	out := make([]Category, len(orderedCategories))
	copy(out, orderedCategories)
	return out
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	_, ok := categoryInfo[c]
	return ok
}

// Metadata returns the severity and recovery actions for c. Unknown categories
// resolve to the NETWORK metadata, matching the classifier default.
func Metadata(c Category) Info {
	info, ok := categoryInfo[c]
	if !ok {
		info = categoryInfo[CategoryNetwork]
	}
	actions := make([]string, len(info.RecoveryActions))
	copy(actions, info.RecoveryActions)
	return Info{Severity: info.Severity, RecoveryActions: actions}
}

// SeverityOf is a shorthand for Metadata(c).Severity.
func SeverityOf(c Category) Severity {
	return Metadata(c).Severity
}
