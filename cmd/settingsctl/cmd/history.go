// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// HistoryEntry represents one committed change.
type HistoryEntry struct {
	Revision uint64    `json:"revision"`
	Time     time.Time `json:"time"`
	Keys     []string  `json:"keys"`
}

// HistoryResponse is the API response for /api/v1/history.
type HistoryResponse struct {
	Changes []HistoryEntry `json:"changes"`
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the change history",
	Long:  `Display recent committed changes to the settings document, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewAPIClient()

		var resp HistoryResponse
		path := fmt.Sprintf("/api/v1/history?limit=%d", historyLimit)
		if err := client.Get(path, &resp); err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}

		if jsonOutput {
			return formatter.Print(resp)
		}

		rows := make([][]string, 0, len(resp.Changes))
		for _, c := range resp.Changes {
			rows = append(rows, []string{
				fmt.Sprintf("%d", c.Revision),
				c.Time.Local().Format(time.RFC3339),
				strings.Join(c.Keys, ", "),
			})
		}

		formatter.PrintTable([]string{"REVISION", "TIME", "KEYS"}, rows)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of changes to show")
}
