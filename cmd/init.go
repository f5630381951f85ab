// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mbs/cli/internal/repo"
)

// initCmd binds the current directory to one remote server URL. Every
// other command requires the marker it creates.
var initCmd = &cobra.Command{
	Use:   "init <url>",
	Short: "Initialize the current directory as an mbs repository",
	Long: `Creates the ` + repo.MarkerFile + ` marker file binding this directory to a remote
Metabase server. Trailing slashes are stripped from the URL. Initializing
an already initialized directory is an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := repo.Init(args[0])
		if err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Created %q file with url %q in the current directory.", repo.MarkerFile, cfg.URL))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
