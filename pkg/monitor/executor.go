// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/jllopis/vigil/pkg/resilience"
	"github.com/jllopis/vigil/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteWithCircuitBreaker runs op behind the breaker called name. opts only
// apply when the breaker is created.
//
// Every failure, including a short-circuit by an open breaker, is recorded
// with name as the operation. When fallback succeeds its value is returned and
// a successful fallback recovery is recorded against the new error id. When
// there is no fallback, or it fails too, the original error is returned.
func (m *Monitor) ExecuteWithCircuitBreaker(
	ctx context.Context,
	name string,
	op resilience.Operation,
	fallback resilience.FallbackStrategy,
	opts ...resilience.Option,
) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.RecordRequest()
	cb := m.registry.Get(name, opts...)

	ctx, span := m.tracer.Start(ctx, "vigil.breaker.execute",
		trace.WithAttributes(attribute.String(telemetry.AttrSpanBreakerName, name)))
	defer span.End()

	start := m.now()
	value, err := cb.Execute(ctx, op, nil)
	elapsed := m.now().Sub(start)
	span.SetAttributes(attribute.String(telemetry.AttrSpanBreakerState, string(cb.State())))
	if err == nil {
		m.RecordOperation(ctx, name, elapsed, true)
		return value, nil
	}

	recorded := m.RecordError(ctx, err, classify.Context{telemetry.AttrOperation: name})
	span.RecordError(err)
	span.SetAttributes(
		attribute.String(telemetry.AttrSpanErrorID, recorded.ErrorID),
		attribute.String(telemetry.AttrSpanCategory, string(recorded.Category)),
	)
	m.RecordOperation(ctx, name, elapsed, false)

	if fallback == nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fallbackStart := m.now()
	fv, ferr := m.runFallback(ctx, fallback, err)
	m.RecordRecovery(ctx, recorded.ErrorID, classify.ActionFallback, ferr == nil, m.now().Sub(fallbackStart))
	span.SetAttributes(attribute.Bool(telemetry.AttrSpanFallbackUsed, ferr == nil))
	if ferr != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return fv, nil
}

func (m *Monitor) runFallback(ctx context.Context, fallback resilience.FallbackStrategy, cause error) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("fallback panicked: %v", r)
		}
	}()
	return fallback.Execute(ctx, cause)
}

// Guard is the typed form of ExecuteWithCircuitBreaker. fallback may be nil.
func Guard[T any](
	ctx context.Context,
	m *Monitor,
	name string,
	op func(ctx context.Context) (T, error),
	fallback func(ctx context.Context, cause error) (T, error),
	opts ...resilience.Option,
) (T, error) {
	var strategy resilience.FallbackStrategy
	if fallback != nil {
		strategy = resilience.FallbackFunc(func(ctx context.Context, cause error) (interface{}, error) {
			return fallback(ctx, cause)
		})
	}
	value, err := m.ExecuteWithCircuitBreaker(ctx, name, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, strategy, opts...)

	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
