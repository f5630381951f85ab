// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"

	"mbs/cli/internal/engine"
)

// mergeCmd refreshes local files from the remote while keeping the local
// native query text. Only native queries are merged; anything else is
// skipped with a warning since GUI-built queries have no stable local
// text representation.
var mergeCmd = &cobra.Command{
	Use:   "merge [filename]",
	Short: "Merge remote card metadata into locally edited query files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := ""
		if len(args) == 1 {
			filename = args[0]
		}
		eng, err := engine.New(logger, engine.DefaultIncludeFolder)
		if err != nil {
			return err
		}
		return eng.Merge(cmd.Context(), filename)
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
