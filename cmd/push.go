// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"atomicgo.dev/cursor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mbs/cli/internal/engine"
)

var (
	pushIncludeFolder string
	pushRenderOnly    bool
)

// pushCmd renders a local template file into card JSON, validates it and
// uploads it. Without a filename every JSON file under the working tree
// is pushed, excluding the include folder; the batch stops at the first
// failing file.
var pushCmd = &cobra.Command{
	Use:   "push [filename]",
	Short: "Render local template files and upload them to the remote server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := ""
		if len(args) == 1 {
			filename = args[0]
		}
		eng, err := engine.New(logger, pushIncludeFolder)
		if err != nil {
			return err
		}
		cursor.Hide()
		defer cursor.Show()
		return eng.Push(cmd.Context(), filename, pushRenderOnly)
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().StringVar(&pushIncludeFolder, "include_folder", engine.DefaultIncludeFolder,
		"The folder where the template engine looks for include files")
	pushCmd.Flags().BoolVar(&pushRenderOnly, "render_only", false,
		"Render to the console without uploading. Useful for debugging.")
	// Accept --ro as a shorthand for --render_only; pflag shorthands are
	// single-letter, so this goes through the name normalizer instead.
	pushCmd.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "ro" {
			name = "render_only"
		}
		return pflag.NormalizedName(name)
	})
}
