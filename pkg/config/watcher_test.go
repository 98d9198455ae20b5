// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// touch rewrites path with a modification time strictly after the previous one.
func touch(t *testing.T, path, content string, at time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
}

func TestWatcherDetectsChanges(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, configPath, "breaker:\n  failure_threshold: 3\n", time.Now().Add(-time.Hour))

	watcher, err := NewWatcher(configPath, WithWatchInterval(20*time.Millisecond), WithWatchLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		changes <- cfg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	if got := watcher.Config().Breaker.FailureThreshold; got != 3 {
		t.Errorf("expected initial threshold 3, got %d", got)
	}

	touch(t, configPath, "breaker:\n  failure_threshold: 8\n", time.Now())

	select {
	case cfg := <-changes:
		if cfg.Breaker.FailureThreshold != 8 {
			t.Errorf("expected threshold 8, got %d", cfg.Breaker.FailureThreshold)
		}
		if watcher.Config().Breaker.FailureThreshold != 8 {
			t.Errorf("watcher did not keep the reloaded config")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, configPath, "monitor:\n  history_size: 10\n", time.Now().Add(-time.Hour))

	watcher, err := NewWatcher(configPath, WithWatchInterval(20*time.Millisecond), WithWatchLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var calls atomic.Int32
	watcher.OnChange(func(*Config) { calls.Add(1) })

	watcher.Start(context.Background())
	defer watcher.Stop()

	touch(t, configPath, "monitor:\n  history_size: -1\n", time.Now())
	time.Sleep(200 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("listeners must not run for an invalid config")
	}
	if got := watcher.Config().Monitor.HistorySize; got != 10 {
		t.Errorf("expected previous history size 10, got %d", got)
	}
}

func TestWatcherMultipleListeners(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	touch(t, configPath, "log:\n  level: info\n", time.Now().Add(-time.Hour))

	watcher, err := NewWatcher(configPath, WithWatchInterval(20*time.Millisecond), WithWatchLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	var count1, count2 atomic.Int32
	watcher.OnChange(func(*Config) { count1.Add(1) })
	watcher.OnChange(func(*Config) { count2.Add(1) })

	watcher.Start(context.Background())
	defer watcher.Stop()

	touch(t, configPath, "log:\n  level: debug\n", time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (count1.Load() == 0 || count2.Load() == 0) {
		time.Sleep(10 * time.Millisecond)
	}
	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("expected both listeners called once, got count1=%d, count2=%d", count1.Load(), count2.Load())
	}
}

func TestWatcherProfile(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "config.yaml")
	devPath := filepath.Join(dir, "config.dev.yaml")
	old := time.Now().Add(-time.Hour)
	touch(t, basePath, "log:\n  level: info\n", old)
	touch(t, devPath, "log:\n  level: debug\n", old)

	changes := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, cfg, err := WatchConfig(ctx, basePath,
		WithProfile("dev"), WithWatchInterval(20*time.Millisecond), WithWatchLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	defer watcher.Stop()
	watcher.OnChange(func(c *Config) { changes <- c })

	if cfg.Log.Level != "debug" {
		t.Errorf("expected profile level debug, got %s", cfg.Log.Level)
	}

	touch(t, devPath, "log:\n  level: warn\n", time.Now())
	select {
	case c := <-changes:
		if c.Log.Level != "warn" {
			t.Errorf("expected warn after profile change, got %s", c.Log.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for profile change")
	}
}

func TestWatcherStops(t *testing.T) {
	watcher, err := NewWatcher("", WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}
}
