// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// settingsctl is the command-line tool for managing settingsd.
package main

import (
	"os"

	"github.com/cruxdb/settingsd/cmd/settingsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
