// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jllopis/vigil/pkg/config"
	"github.com/jllopis/vigil/pkg/httpapi"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var watch bool
	var watchInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor behind an HTTP API",
		Long: "Serve exposes /metrics, /healthz, /stats, /slo, /breakers and the /events " +
			"websocket stream, and checks error-rate SLOs periodically.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), watch, watchInterval)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload SLO and breaker settings when the config file changes")
	cmd.Flags().DurationVar(&watchInterval, "watch-interval", 2*time.Second, "Config file polling interval")
	return cmd
}

// onListen, when set, is called with the bound address. Tests use it to
// learn the port of server.addr=127.0.0.1:0.
var onListen func(net.Addr)

func (a *app) serve(ctx context.Context, watch bool, watchInterval time.Duration) error {
	events := httpapi.NewBroadcaster(a.logger)
	svc, err := a.newServices(monitor.WithEventEmitter(events))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.close(shutdownCtx); err != nil {
			a.logger.Warn("shutdown incomplete", "error", err)
		}
	}()
	m := svc.monitor

	stopTicker := m.StartSLOTicker(ctx, a.cfg.Monitor.SLOCheckInterval)
	defer stopTicker()

	if watch && a.flags.ConfigPath != "" {
		watcher, err := config.NewWatcher(a.flags.ConfigPath,
			config.WithProfile(a.flags.Profile),
			config.WithWatchInterval(watchInterval),
			config.WithWatchLogger(a.logger),
		)
		if err != nil {
			return WrapConfigError(err, a.flags.ConfigPath)
		}
		watcher.OnChange(func(cfg *config.Config) { applyReload(m, cfg, a) })
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	srv, err := httpapi.New(m, httpapi.WithLogger(a.logger), httpapi.WithEvents(events))
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return WrapServeError(err, "http server")
	}
	if onListen != nil {
		onListen(ln.Addr())
	}

	httpServer := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()
	a.logger.Info("vigil listening", "addr", ln.Addr().String(), "version", Version)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapServeError(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapServeError(err, "http server")
	}
	return nil
}

// applyReload pushes hot-reloadable settings into the monitor. Other
// sections need a restart.
func applyReload(m *monitor.Monitor, cfg *config.Config, a *app) {
	if err := m.SetSLOTargets(cfg.SLOTargets()); err != nil {
		a.logger.Error("rejected reloaded SLO targets", "error", err)
	}
	m.SetLatencyTargets(cfg.SLO.Latency)
	m.SetBreakerDefaults(cfg.BreakerDefaults())
	a.logger.Info("applied reloaded configuration",
		"failure_threshold", cfg.Breaker.FailureThreshold,
		"slo_targets", len(cfg.SLOTargets()),
	)
}
