// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"

	"github.com/jllopis/vigil/pkg/journal"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/jllopis/vigil/pkg/telemetry"
)

// services bundles the monitor with the resources it was built from.
type services struct {
	monitor  *monitor.Monitor
	journal  journal.Store
	shutdown []func(context.Context) error
}

// newServices initializes telemetry, the optional journal and the monitor from
// the loaded configuration. extra options are applied last.
func (a *app) newServices(extra ...monitor.Option) (*services, error) {
	svc := &services{}

	shutdownTelemetry, providers, err := telemetry.InitWithConfig(a.cfg.Telemetry.ServiceName, Version, a.cfg.TelemetryOptions())
	if err != nil {
		return nil, WrapServeError(err, "telemetry")
	}
	svc.shutdown = append(svc.shutdown, shutdownTelemetry)

	opts := []monitor.Option{
		monitor.WithLogger(a.logger),
		monitor.WithMeterProvider(providers.Meter),
		monitor.WithTracerProvider(providers.Tracer),
		monitor.WithHistorySize(a.cfg.Monitor.HistorySize),
		monitor.WithBreakerDefaults(a.cfg.BreakerDefaults()),
		monitor.WithSLOTargets(a.cfg.SLOTargets()),
		monitor.WithLatencyTargets(a.cfg.SLO.Latency),
	}

	if a.cfg.Journal.Enabled {
		store, err := openJournal(a.cfg.Journal.Driver, a.cfg.Journal.DSN)
		if err != nil {
			_ = svc.close(context.Background())
			return nil, WrapServeError(err, "journal")
		}
		svc.journal = store
		if c, ok := store.(io.Closer); ok {
			svc.shutdown = append(svc.shutdown, func(context.Context) error { return c.Close() })
		}
		opts = append(opts, monitor.WithJournal(store))
		a.logger.Info("error journal enabled", "driver", a.cfg.Journal.Driver, "run_id", store.RunID())
	}

	m, err := monitor.New(append(opts, extra...)...)
	if err != nil {
		_ = svc.close(context.Background())
		return nil, err
	}
	svc.monitor = m
	return svc, nil
}

func openJournal(driver, dsn string) (journal.Store, error) {
	if driver == "sqlite" {
		return journal.OpenSQLite(dsn, "")
	}
	return journal.NewMemory(""), nil
}

// close releases resources in reverse order of acquisition.
func (svc *services) close(ctx context.Context) error {
	var errs []error
	if svc.monitor != nil {
		errs = append(errs, svc.monitor.Close())
	}
	for i := len(svc.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, svc.shutdown[i](ctx))
	}
	return errors.Join(errs...)
}
