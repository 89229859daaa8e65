// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set field=value ...",
	Short: "Update settings",
	Long: `Update one or more settings. Each argument is a field=value pair;
all pairs are applied in a single transaction, so one invalid value
rejects the whole update.

Values are parsed as JSON where possible (numbers, booleans), and
treated as strings otherwise:

  settingsctl set memoryQuota=1024
  settingsctl set logLevel=debug stealthDebug=true`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := make(map[string]interface{}, len(args))
		for _, arg := range args {
			name, raw, ok := strings.Cut(arg, "=")
			if !ok || name == "" {
				return fmt.Errorf("invalid argument %q, expected field=value", arg)
			}
			fields[name] = parseValue(raw)
		}

		client := NewAPIClient()

		var resp SettingsResponse
		if err := client.Post("/api/v1/settings", fields, &resp); err != nil {
			return err
		}

		if jsonOutput {
			return formatter.Print(resp)
		}

		for name := range fields {
			fmt.Printf("%s = %v\n", name, resp.Settings[name])
		}
		return nil
	},
}

// parseValue interprets a raw CLI value: JSON scalars keep their type,
// anything else is a string.
func parseValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool:
			return v
		}
	}
	return raw
}
