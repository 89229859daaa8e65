// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cruxdb/settingsd/cmd/settingsctl/output"
)

// StatusResponse is the API response for /api/v1/status.
type StatusResponse struct {
	ServerVersion  string `json:"server_version"`
	CompatVersion  string `json:"compat_version"`
	LatestVersion  string `json:"latest_version"`
	Revision       uint64 `json:"revision"`
	ClusterMembers int    `json:"cluster_members,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show settingsd status",
	Long:  `Display the daemon version, document revision and the effective schema version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewAPIClient()

		var status StatusResponse
		if err := client.Get("/api/v1/status", &status); err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		if jsonOutput {
			return formatter.Print(status)
		}

		schemaStr := status.CompatVersion
		if status.CompatVersion != status.LatestVersion {
			schemaStr += fmt.Sprintf(" (latest supported: %s)", status.LatestVersion)
		}

		pairs := []output.KVPair{
			{Key: "Server version", Value: status.ServerVersion},
			{Key: "Schema version", Value: schemaStr},
			{Key: "Revision", Value: fmt.Sprintf("%d", status.Revision)},
		}
		if status.ClusterMembers > 0 {
			pairs = append(pairs, output.KVPair{
				Key:   "Cluster members",
				Value: fmt.Sprintf("%d", status.ClusterMembers),
			})
		}

		formatter.PrintKeyValue(pairs)
		return nil
	},
}
