// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package classify

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// DefaultCategory is returned when no rule matches. It is a fallback, not a
// statement of confidence.
const DefaultCategory = CategoryNetwork

type hint struct {
	token    string
	category Category
}

// Evaluated in order against component, then operation. A hint matches a
// whole token of the value, so "feed.websocket" hints WEBSOCKET while
// "author-api" does not hint AUTH.
var contextHints = []hint{
	{"websocket", CategoryWebSocket},
	{"seventv", CategoryThirdPartyExt},
	{"7tv", CategoryThirdPartyExt},
	{"storage", CategoryStorage},
	{"render", CategoryRender},
	{"auth", CategoryAuth},
	{"parser", CategoryParsing},
}

var networkCodes = map[string]bool{
	"ECONNREFUSED": true,
	"ECONNRESET":   true,
	"ETIMEDOUT":    true,
	"ENOTFOUND":    true,
	"EAI_AGAIN":    true,
}

type messageRule struct {
	pattern  *regexp.Regexp
	category Category
}

var messageRules = []messageRule{
	{regexp.MustCompile(`network|timeout|fetch`), CategoryNetwork},
	{regexp.MustCompile(`websocket|\bws\b|connection`), CategoryWebSocket},
	{regexp.MustCompile(`parse|json|syntax`), CategoryParsing},
	{regexp.MustCompile(`storage|quota`), CategoryStorage},
	{regexp.MustCompile(`render|component`), CategoryRender},
	{regexp.MustCompile(`7tv|seventv`), CategoryThirdPartyExt},
}

// Classify resolves info to exactly one category. Rules are checked in order:
// context hints, error codes, error names, message keywords. The first match
// wins and DefaultCategory is returned when nothing matches.
func Classify(info ErrorInfo, ctx Context) Category {
	if c, ok := classifyContext(ctx); ok {
		return c
	}
	if c, ok := classifyCode(info.Code); ok {
		return c
	}
	switch info.Name {
	case NameTimeout, NameNetwork:
		return CategoryNetwork
	case NameSyntax:
		return CategoryParsing
	}
	if c, ok := classifyMessage(strings.ToLower(info.Message), ctx); ok {
		return c
	}
	return DefaultCategory
}

// ClassifyError is Classify(Describe(err), ctx).
func ClassifyError(err error, ctx Context) Category {
	return Classify(Describe(err), ctx)
}

func classifyContext(ctx Context) (Category, bool) {
	for _, key := range []string{"component", "operation"} {
		tokens := hintTokens(contextString(ctx, key))
		if len(tokens) == 0 {
			continue
		}
		for _, h := range contextHints {
			if slices.Contains(tokens, h.token) {
				return h.category, true
			}
		}
	}
	return "", false
}

// hintTokens splits a component or operation name on every rune that is not
// a letter or digit.
func hintTokens(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func classifyCode(code any) (Category, bool) {
	if code == nil {
		return "", false
	}
	if n, ok := numericCode(code); ok {
		switch {
		case n == 0:
			return "", false
		case n == 401 || n == 403:
			return CategoryAuth, true
		default:
			return CategoryAPI, true
		}
	}
	s, ok := code.(string)
	if !ok {
		return "", false
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case networkCodes[s]:
		return CategoryNetwork, true
	case s == "QUOTA_EXCEEDED":
		return CategoryStorage, true
	}
	return "", false
}

func numericCode(code any) (int64, bool) {
	v := reflect.ValueOf(code)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(v.Float()), true
	case reflect.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func classifyMessage(msg string, ctx Context) (Category, bool) {
	for _, rule := range messageRules {
		if rule.pattern.MatchString(msg) {
			return rule.category, true
		}
	}
	if strings.Contains(msg, "emote") {
		for _, key := range []string{"provider", "source"} {
			v := contextString(ctx, key)
			if v == "7tv" || v == "seventv" {
				return CategoryThirdPartyExt, true
			}
		}
	}
	return "", false
}

func contextString(ctx Context, key string) string {
	if ctx == nil {
		return ""
	}
	v, ok := ctx[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return strings.ToLower(fmt.Sprint(v))
}
