// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for settingsctl.

To load completions:

Bash:
  $ source <(settingsctl completion bash)
  # To load completions for each session, execute once:
  $ settingsctl completion bash > /etc/bash_completion.d/settingsctl

Zsh:
  $ settingsctl completion zsh > "${fpath[1]}/_settingsctl"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ settingsctl completion fish | source
  # To load completions for each session, execute once:
  $ settingsctl completion fish > ~/.config/fish/completions/settingsctl.fish

PowerShell:
  PS> settingsctl completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}
