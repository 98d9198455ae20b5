// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Command vigil runs the error-resilience monitor as a service and offers
// local tooling around it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err, rootJSON(root))
		stop()
		os.Exit(1)
	}
}
