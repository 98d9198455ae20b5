// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jllopis/vigil/pkg/classify"
	"github.com/spf13/cobra"
)

type classifyResult struct {
	Message         string            `json:"message" yaml:"message"`
	Category        classify.Category `json:"category" yaml:"category"`
	Severity        classify.Severity `json:"severity" yaml:"severity"`
	RecoveryActions []string          `json:"recovery_actions" yaml:"recovery_actions"`
}

func newClassifyCmd(a *app) *cobra.Command {
	var code, name, component, operation, provider, output string

	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Classify an error message and show its recovery actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := classify.FromString(args[0])
			info.Name = name
			info.Code = parseCode(code)

			ctx := classify.Context{}
			for key, value := range map[string]string{
				"component": component,
				"operation": operation,
				"provider":  provider,
			} {
				if value != "" {
					ctx[key] = value
				}
			}

			category := classify.Classify(info, ctx)
			meta := classify.Metadata(category)
			result := classifyResult{
				Message:         info.Message,
				Category:        category,
				Severity:        meta.Severity,
				RecoveryActions: meta.RecoveryActions,
			}
			return writeOutput(a.stdout, output, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "category: %s\nseverity: %s\nactions:  %s\n",
					result.Category, result.Severity, strings.Join(result.RecoveryActions, ", "))
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&code, "code", "", "Error code (HTTP status or string code such as ECONNRESET)")
	f.StringVar(&name, "name", "", "Error name (TimeoutError, NetworkError, SyntaxError)")
	f.StringVar(&component, "component", "", "Component hint")
	f.StringVar(&operation, "operation", "", "Operation hint")
	f.StringVar(&provider, "provider", "", "Provider hint")
	f.StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

// parseCode keeps numeric codes numeric so they classify as statuses.
func parseCode(code string) any {
	if code == "" {
		return nil
	}
	if n, err := strconv.Atoi(code); err == nil {
		return n
	}
	return code
}
