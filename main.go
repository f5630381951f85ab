// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the mbs CLI.
// It keeps local card template files synchronized with a remote
// Metabase server through its REST API.
package main

import (
	"mbs/cli/cmd"
)

func main() {
	cmd.Execute()
}
