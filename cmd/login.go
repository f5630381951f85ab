// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"

	"mbs/cli/internal/engine"
)

var dontSaveCredentials bool

// loginCmd authenticates against the repository's remote and stores the
// session token in the per-user remotes file. Unless told otherwise it
// also stores the credentials so expired sessions renew transparently.
var loginCmd = &cobra.Command{
	Use:   "login <username> <password>",
	Short: "Log in to the remote server and store the session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := engine.New(logger, engine.DefaultIncludeFolder)
		if err != nil {
			return err
		}
		return eng.Login(cmd.Context(), args[0], args[1], !dontSaveCredentials)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVarP(&dontSaveCredentials, "dont-save-credentials", "s", false,
		"Save only the session token, not username and password, to the per-user remotes file")
}
