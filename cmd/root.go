// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for mbs using the
// Cobra framework: init, login, pull, push and merge subcommands plus
// global verbosity and version flags. Execute is the only place where
// errors are mapped to process exit codes.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"mbs/cli/internal/errs"
)

// Exit codes. Recoverable and fatal errors exit with distinct codes so
// callers can tell a skip-worthy condition from a broken setup.
const (
	exitRecoverable = -2
	exitFatal       = -1
)

var (
	verbose bool
	logger  = pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mbs",
	Short: "Synchronize local card templates with a Metabase server",
	Long: `mbs keeps local template files in lockstep with cards (saved questions)
on a remote Metabase server: pull remote cards to local files, render and
push local templates back, and merge remote metadata into locally edited
query text.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger = logger.WithLevel(pterm.LogLevelDebug)
		}
	},
}

// Execute runs the CLI application and maps errors to exit codes:
// 0 on success, a distinct code each for recoverable and fatal errors,
// and the generic failure code for anything unexpected. No stack traces
// reach the user.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var e *errs.E
		if errors.As(err, &e) {
			switch e.Severity {
			case errs.SeverityRecoverable:
				logger.Warn(e.Error())
				os.Exit(exitRecoverable)
			case errs.SeverityFatal:
				logger.Error(e.Error())
				os.Exit(exitFatal)
			}
		}
		logger.Error(fmt.Sprintf("unexpected error: %T: %v", err, err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	rootCmd.SetVersionTemplate("MetaBaseSync - mbs {{.Version}}\n")
}
