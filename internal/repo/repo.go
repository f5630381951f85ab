// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package repo reads and writes the repository marker file that binds a
// local directory to one remote server URL. The marker must exist before
// any network operation proceeds and is immutable after creation.
package repo

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"mbs/cli/internal/errs"
)

// MarkerFile is the hidden marker written by init into the working directory.
const MarkerFile = ".mbs"

// Config holds the settings stored in the marker file.
type Config struct {
	URL string `json:"url"`
}

// Init creates the marker file for url in the current directory.
// Trailing slashes are stripped so API paths can be appended verbatim.
// Re-initializing an existing repository is fatal: the repository state
// would be ambiguous otherwise.
func Init(url string) (Config, error) {
	if _, err := os.Stat(MarkerFile); err == nil {
		return Config{}, errs.Fatal(errs.RepoExists, "there is already an mbs repo in this folder")
	}
	cfg := Config{URL: strings.TrimRight(url, "/")}
	b, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := os.WriteFile(MarkerFile, b, 0o644); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the marker file of the current directory.
func Load() (Config, error) {
	data, err := os.ReadFile(MarkerFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, errs.Fatal(errs.RepoMissing,
				`this folder is not a valid mbs repo; use "mbs init <url>" to create a new repo first`)
		}
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.RepoInvalid, errs.SeverityFatal,
			"the "+MarkerFile+" file is not valid JSON", err)
	}
	return cfg, nil
}
