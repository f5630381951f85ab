// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strconv"

	"atomicgo.dev/cursor"
	"github.com/spf13/cobra"

	"mbs/cli/internal/engine"
)

var pullOverwrite bool

// pullCmd fetches cards from the remote and writes them as local JSON
// files. Without a card id it adopts every remote card carrying the
// ownership tag whose id is not already present in the local tree.
var pullCmd = &cobra.Command{
	Use:   "pull [card_id]",
	Short: "Fetch cards from the remote server into local files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cardID := 0
		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid card id %q", args[0])
			}
			cardID = id
		}
		eng, err := engine.New(logger, engine.DefaultIncludeFolder)
		if err != nil {
			return err
		}
		cursor.Hide()
		defer cursor.Show()
		return eng.Pull(cmd.Context(), cardID, pullOverwrite)
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().BoolVarP(&pullOverwrite, "overwrite", "o", false, "Overwrite existing files")
}
