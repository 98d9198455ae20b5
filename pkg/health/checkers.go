// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/jllopis/vigil/pkg/resilience"
)

// BreakerStatuser reports breaker statuses. *resilience.Registry implements it.
type BreakerStatuser interface {
	Statuses() []resilience.Status
}

// BreakerChecker reports Unhealthy while any breaker is open and Degraded
// while any is half-open.
func BreakerChecker(breakers BreakerStatuser) Checker {
	return CheckerFunc(func(context.Context) Result {
		var open, halfOpen []string
		for _, s := range breakers.Statuses() {
			switch s.State {
			case resilience.StateOpen:
				open = append(open, s.Name)
			case resilience.StateHalfOpen:
				halfOpen = append(halfOpen, s.Name)
			}
		}

		result := Result{Status: Healthy, Message: "all circuit breakers closed", LastCheck: time.Now()}
		switch {
		case len(open) > 0:
			result.Status = Unhealthy
			result.Message = "open circuit breakers: " + strings.Join(open, ", ")
		case len(halfOpen) > 0:
			result.Status = Degraded
			result.Message = "half-open circuit breakers: " + strings.Join(halfOpen, ", ")
		}
		if len(open)+len(halfOpen) > 0 {
			result.Details = map[string]any{"open": open, "half_open": halfOpen}
		}
		return result
	})
}

// SLOEvaluator computes SLO results without side effects. *monitor.Monitor
// implements it.
type SLOEvaluator interface {
	EvaluateSLOs() []monitor.SLOResult
}

// SLOChecker reports Unhealthy when any error-rate SLO is critically
// violated and Degraded when any is above target.
func SLOChecker(evaluator SLOEvaluator) Checker {
	return CheckerFunc(func(context.Context) Result {
		result := Result{Status: Healthy, Message: "error rates within target", LastCheck: time.Now()}
		violations := map[string]any{}
		for _, r := range evaluator.EvaluateSLOs() {
			switch r.Severity {
			case monitor.SLOCritical:
				result.Status = Unhealthy
			case monitor.SLOWarning:
				if result.Status == Healthy {
					result.Status = Degraded
				}
			default:
				continue
			}
			violations[r.Category] = fmt.Sprintf("%.4f > %.4f", r.CurrentRate, r.TargetRate)
		}
		if len(violations) > 0 {
			result.Message = fmt.Sprintf("%d error rate SLO(s) violated", len(violations))
			result.Details = violations
		}
		return result
	})
}
