// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	vigilerrors "github.com/jllopis/vigil/pkg/errors"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/jllopis/vigil/pkg/resilience"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type simulateOptions struct {
	Requests    int
	Rate        float64
	Burst       int
	FailureRate float64
	Operations  []string
	Seed        uint64
	Fallback    bool
	Latency     time.Duration
	Timeout     time.Duration
	Recent      bool
	Output      string
}

// simulationReport is printed at the end of a simulation.
type simulationReport struct {
	Requests       int                     `json:"requests" yaml:"requests"`
	Succeeded      int                     `json:"succeeded" yaml:"succeeded"`
	FallbackServed int                     `json:"fallback_served" yaml:"fallback_served"`
	Failed         int                     `json:"failed" yaml:"failed"`
	ShortCircuited int                     `json:"short_circuited" yaml:"short_circuited"`
	Elapsed        time.Duration           `json:"elapsed" yaml:"elapsed"`
	Statistics     monitor.ErrorStatistics `json:"statistics" yaml:"statistics"`
	SLOs           []monitor.SLOResult     `json:"slos" yaml:"slos"`
}

func newSimulateCmd(a *app) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive synthetic failing operations through guarded executors",
		Long: "Simulate paces calls to the named operations, fails a share of them with " +
			"errors typical of each operation and prints the resulting statistics and SLO results.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.simulate(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Requests, "requests", "n", 100, "Number of guarded calls")
	f.Float64Var(&opts.Rate, "rate", 200, "Calls per second (0 for unlimited)")
	f.IntVar(&opts.Burst, "burst", 1, "Rate limiter burst")
	f.Float64Var(&opts.FailureRate, "failure-rate", 0.2, "Probability that a call fails (0..1)")
	f.StringSliceVar(&opts.Operations, "operations", []string{"api.fetch_user", "storage.save", "feed.websocket"},
		"Operations to call round-robin; names hint the failure kind")
	f.Uint64Var(&opts.Seed, "seed", 1, "Random seed")
	f.DurationVar(&opts.Latency, "latency", 0, "Simulated latency of every call")
	f.DurationVar(&opts.Timeout, "timeout", 0, "Per-call deadline (0 for none)")
	f.BoolVar(&opts.Fallback, "fallback", true, "Serve a static fallback when a call fails")
	f.BoolVar(&opts.Recent, "recent", false, "Include recent error records in the report")
	f.StringVarP(&opts.Output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func (a *app) simulate(ctx context.Context, opts simulateOptions) error {
	if opts.Requests < 1 {
		return fmt.Errorf("requests must be positive")
	}
	if opts.FailureRate < 0 || opts.FailureRate > 1 {
		return fmt.Errorf("failure-rate must be within [0, 1]")
	}
	if len(opts.Operations) == 0 {
		return fmt.Errorf("at least one operation is required")
	}

	svc, err := a.newServices()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.close(context.Background()); err != nil {
			a.logger.Warn("shutdown incomplete", "error", err)
		}
	}()
	m := svc.monitor

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	limiter := rate.NewLimiter(limit, max(opts.Burst, 1))
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	var fallback resilience.FallbackStrategy
	if opts.Fallback {
		fallback = &resilience.StaticFallback{Value: "fallback"}
	}

	report := simulationReport{}
	start := time.Now()
	for i := 0; i < opts.Requests; i++ {
		if err := limiter.Wait(ctx); err != nil {
			a.logger.Warn("simulation interrupted", "completed", report.Requests, "error", err)
			break
		}
		name := opts.Operations[i%len(opts.Operations)]
		fail := rng.Float64() < opts.FailureRate

		var called atomic.Bool
		op := resilience.WithDeadline(func(ctx context.Context) (any, error) {
			called.Store(true)
			if opts.Latency > 0 {
				select {
				case <-time.After(opts.Latency):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if fail {
				return nil, simulatedFailure(name)
			}
			return "ok", nil
		}, opts.Timeout)
		value, err := m.ExecuteWithCircuitBreaker(ctx, name, op, fallback)

		report.Requests++
		if !called.Load() {
			report.ShortCircuited++
		}
		switch {
		case err != nil:
			report.Failed++
		case value == "fallback":
			report.FallbackServed++
		default:
			report.Succeeded++
		}
	}
	report.Elapsed = time.Since(start).Round(time.Millisecond)
	report.Statistics = m.Statistics()
	report.SLOs = m.CheckAllSLOs(ctx)
	if !opts.Recent {
		report.Statistics.RecentErrors = nil
	}

	return writeOutput(a.stdout, opts.Output, report, report.writeText)
}

// simulatedFailure returns an error the classifier maps to the kind of
// dependency the operation name suggests.
func simulatedFailure(operation string) error {
	op := strings.ToLower(operation)
	switch {
	case strings.Contains(op, "websocket"):
		return errors.New("websocket connection dropped")
	case strings.Contains(op, "storage"):
		return vigilerrors.New(vigilerrors.CodeUnavailable, "storage quota exceeded", nil)
	case strings.Contains(op, "auth"):
		return vigilerrors.New(vigilerrors.CodeUnauthorized, "token rejected", nil).WithStatus(401)
	case strings.Contains(op, "parse"), strings.Contains(op, "decode"):
		return errors.New("invalid json payload")
	case strings.Contains(op, "api"):
		return vigilerrors.New(vigilerrors.CodeUnavailable, "upstream unavailable", nil).WithStatus(503)
	default:
		return fmt.Errorf("%s: %w", operation, context.DeadlineExceeded)
	}
}

func (r simulationReport) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "requests\t%d\n", r.Requests)
	fmt.Fprintf(tw, "succeeded\t%d\n", r.Succeeded)
	fmt.Fprintf(tw, "fallback served\t%d\n", r.FallbackServed)
	fmt.Fprintf(tw, "failed\t%d\n", r.Failed)
	fmt.Fprintf(tw, "short-circuited\t%d\n", r.ShortCircuited)
	fmt.Fprintf(tw, "elapsed\t%s\n", r.Elapsed)
	fmt.Fprintf(tw, "total errors\t%d\n", r.Statistics.TotalErrors)

	fmt.Fprintln(tw, "\nBREAKER\tSTATE\tFAILURES\tERROR RATE")
	for _, b := range r.Statistics.CircuitBreakers {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\n", b.Name, b.State, b.FailureCount, b.ErrorRate)
	}

	fmt.Fprintln(tw, "\nSLO\tRATE\tTARGET\tSEVERITY")
	for _, s := range r.SLOs {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%s\n", s.Category, s.CurrentRate, s.TargetRate, s.Severity)
	}
	return tw.Flush()
}
