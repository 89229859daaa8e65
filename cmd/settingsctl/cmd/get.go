// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// SettingsResponse is the API response for /api/v1/settings.
type SettingsResponse struct {
	Settings map[string]interface{} `json:"settings"`
	Version  string                 `json:"version"`
}

// FieldResponse is the API response for /api/v1/settings/{field}.
type FieldResponse struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

var getCmd = &cobra.Command{
	Use:   "get [field]",
	Short: "Read settings",
	Long: `Read the full settings document, or a single setting when a field
name is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewAPIClient()

		if len(args) == 1 {
			var field FieldResponse
			if err := client.Get("/api/v1/settings/"+args[0], &field); err != nil {
				return fmt.Errorf("failed to get setting: %w", err)
			}
			if jsonOutput {
				return formatter.Print(field)
			}
			fmt.Printf("%v\n", field.Value)
			return nil
		}

		var resp SettingsResponse
		if err := client.Get("/api/v1/settings", &resp); err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}

		if jsonOutput {
			return formatter.Print(resp)
		}

		fields := make([]string, 0, len(resp.Settings))
		for name := range resp.Settings {
			fields = append(fields, name)
		}
		sort.Strings(fields)

		rows := make([][]string, 0, len(fields))
		for _, name := range fields {
			rows = append(rows, []string{name, fmt.Sprintf("%v", resp.Settings[name])})
		}

		fmt.Printf("Settings (schema %s):\n", resp.Version)
		formatter.PrintTable([]string{"FIELD", "VALUE"}, rows)
		return nil
	},
}
