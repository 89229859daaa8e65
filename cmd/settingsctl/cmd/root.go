// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements CLI commands for settingsctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cruxdb/settingsd/cmd/settingsctl/output"
	"github.com/cruxdb/settingsd/pkg/version"
)

var (
	// Global flags
	apiEndpoint string
	timeout     int
	jsonOutput  bool

	// Formatter for output
	formatter output.Formatter
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "settingsctl",
	Short: "CLI for managing settingsd",
	Long: `settingsctl is a command-line tool for managing and debugging settingsd.

It provides commands to:
  - View daemon status and the effective schema version
  - Read the settings document or a single setting
  - Update settings
  - View the change history

Use --api to specify the settingsd API endpoint (default: http://localhost:9102).`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		formatter = output.GetFormatter(jsonOutput)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiEndpoint, "api", getEnvOrDefault("SETTINGSD_API", "http://localhost:9102"), "settingsd API endpoint")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 10, "API request timeout in seconds")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(completionCmd)

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("settingsctl version %s\n", version.Version))
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
