// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Vigil settings with koanf: built-in defaults, then an
// optional YAML file (plus profile overlay), then VIGIL_ environment
// variables, then --set overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/jllopis/vigil/pkg/resilience"
	"github.com/jllopis/vigil/pkg/telemetry"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nesting uses "__":
// VIGIL_BREAKER__FAILURE_THRESHOLD -> breaker.failure_threshold.
const EnvPrefix = "VIGIL_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	SLO       SLOConfig       `koanf:"slo"`
	Journal   JournalConfig   `koanf:"journal"`
	Server    ServerConfig    `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text, tint
}

type TelemetryConfig struct {
	ServiceName    string        `koanf:"service_name"`
	Exporter       string        `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint   string        `koanf:"otlp_endpoint"`
	OTLPInsecure   bool          `koanf:"otlp_insecure"`
	OTLPTimeout    time.Duration `koanf:"otlp_timeout"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

type MonitorConfig struct {
	HistorySize      int           `koanf:"history_size"`
	SLOCheckInterval time.Duration `koanf:"slo_check_interval"`
}

type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	RecoveryTimeout  time.Duration `koanf:"recovery_timeout"`
	MonitoringWindow time.Duration `koanf:"monitoring_window"`
}

// SLOConfig holds SLO overrides. Targets replace the built-in target of the
// same category; latency maps an operation name to its latency objective.
type SLOConfig struct {
	Targets []monitor.SLOTarget      `koanf:"targets"`
	Latency map[string]time.Duration `koanf:"latency"`
}

type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Driver  string `koanf:"driver"` // memory, sqlite
	DSN     string `koanf:"dsn"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":                  "info",
		"log.format":                 "text",
		"telemetry.service_name":     "vigil",
		"telemetry.exporter":         "none",
		"telemetry.otlp_insecure":    false,
		"telemetry.otlp_timeout":     "10s",
		"telemetry.metric_interval":  "1m",
		"monitor.history_size":       monitor.DefaultHistorySize,
		"monitor.slo_check_interval": "1m",
		"breaker.failure_threshold":  resilience.DefaultFailureThreshold,
		"breaker.recovery_timeout":   resilience.DefaultRecoveryTimeout.String(),
		"breaker.monitoring_window":  resilience.DefaultMonitoringWindow.String(),
		"journal.enabled":            false,
		"journal.driver":             "memory",
		"journal.dsn":                "file:vigil.db",
		"server.addr":                ":8080",
		"server.shutdown_timeout":    "10s",
	}
}

// Load reads configuration from path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile loads path and then overlays the profile file next to it
// (config.yaml + "dev" -> config.dev.yaml) when that file exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads configuration driven by command-line style arguments:
// --config <path>, --profile|--env <name> and repeated --set key=value.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

func load(path, profile string, overrides map[string]string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if profilePath := profileConfigPath(path, profile); profilePath != "" {
			if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", profilePath, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps VIGIL_SLO__CHECK_INTERVAL style names to koanf paths.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]string, error) {
	var opts cliOptions
	overrides := map[string]string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("missing value for %s", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, v, ok := strings.Cut(value, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, nil, fmt.Errorf("invalid --set value %q, expected key=value", value)
			}
			overrides[strings.TrimSpace(key)] = v
		}
	}
	return opts, overrides, nil
}

// Validate checks ranges the rest of the system relies on.
func (c *Config) Validate() error {
	var errs []error
	switch c.Telemetry.Exporter {
	case "stdout", "otlp", "none":
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter: unsupported value %q", c.Telemetry.Exporter))
	}
	if c.Monitor.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("monitor.history_size must be positive, got %d", c.Monitor.HistorySize))
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold))
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		errs = append(errs, errors.New("breaker.recovery_timeout must be positive"))
	}
	if c.Breaker.MonitoringWindow <= 0 {
		errs = append(errs, errors.New("breaker.monitoring_window must be positive"))
	}
	for i, target := range c.SLO.Targets {
		if err := target.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("slo.targets[%d]: %w", i, err))
		}
	}
	for op, d := range c.SLO.Latency {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("slo.latency.%s must be positive", op))
		}
	}
	if c.Journal.Enabled {
		switch c.Journal.Driver {
		case "memory", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("journal.driver: unsupported value %q", c.Journal.Driver))
		}
	}
	return errors.Join(errs...)
}

// SLOTargets returns the built-in targets with configured ones applied on top,
// keyed by category.
func (c *Config) SLOTargets() []monitor.SLOTarget {
	targets := monitor.DefaultSLOTargets()
	index := make(map[string]int, len(targets))
	for i, t := range targets {
		index[t.Category] = i
	}
	for _, t := range c.SLO.Targets {
		if i, ok := index[t.Category]; ok {
			targets[i] = t
			continue
		}
		index[t.Category] = len(targets)
		targets = append(targets, t)
	}
	return targets
}

// BreakerDefaults converts the breaker section for the registry.
func (c *Config) BreakerDefaults() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		MonitoringWindow: c.Breaker.MonitoringWindow,
	}
}

// TelemetryOptions converts the telemetry section for telemetry.InitWithConfig.
func (c *Config) TelemetryOptions() telemetry.Config {
	return telemetry.Config{
		Exporter:       c.Telemetry.Exporter,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		OTLPInsecure:   c.Telemetry.OTLPInsecure,
		OTLPTimeout:    c.Telemetry.OTLPTimeout,
		MetricInterval: c.Telemetry.MetricInterval,
	}
}
