// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/jllopis/vigil/pkg/config"
	"github.com/jllopis/vigil/pkg/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Set        []string
	EnvFile    string
	LogLevel   string
	LogFormat  string
	JSON       bool
}

// app is the state shared by subcommands after the root pre-run.
type app struct {
	flags  globalFlags
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "vigil",
		Short:         "Error classification, circuit breaking and SLO monitoring",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.ConfigPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&a.flags.Profile, "profile", "", "Config profile overlay (config.<profile>.yaml)")
	pf.StringArrayVar(&a.flags.Set, "set", nil, "Override a config key (key=value), repeatable")
	pf.StringVar(&a.flags.EnvFile, "env-file", ".env", "Dotenv file loaded before reading VIGIL_ variables")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&a.flags.LogFormat, "log-format", "", "Log format override (text, json, tint)")
	pf.BoolVar(&a.flags.JSON, "json", false, "Print errors as JSON")

	root.AddCommand(
		newServeCmd(a),
		newSimulateCmd(a),
		newClassifyCmd(a),
		newVersionCmd(a),
	)
	return root
}

// rootJSON reports whether --json was requested, for error printing after
// Execute returns.
func rootJSON(root *cobra.Command) bool {
	v, err := root.PersistentFlags().GetBool("json")
	return err == nil && v
}

func (a *app) setup() error {
	if a.flags.EnvFile != "" {
		if err := godotenv.Load(a.flags.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return WrapConfigError(err, a.flags.EnvFile)
		}
	}

	cfg, err := config.LoadWithCLI(a.configArgs())
	if err != nil {
		return WrapConfigError(err, a.flags.ConfigPath)
	}
	if a.flags.LogLevel != "" {
		cfg.Log.Level = a.flags.LogLevel
	}
	if a.flags.LogFormat != "" {
		cfg.Log.Format = a.flags.LogFormat
	}
	a.cfg = cfg
	a.logger = telemetry.NewLogger(a.stderr, cfg.Log.Level, cfg.Log.Format)
	return nil
}

func (a *app) configArgs() []string {
	var args []string
	if a.flags.ConfigPath != "" {
		args = append(args, "--config", a.flags.ConfigPath)
	}
	if a.flags.Profile != "" {
		args = append(args, "--profile", a.flags.Profile)
	}
	for _, kv := range a.flags.Set {
		args = append(args, "--set", kv)
	}
	return args
}
