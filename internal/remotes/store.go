// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package remotes persists per-remote credentials in the user config dir.
//
// The store is a single JSON file mapping server URL to a credential
// record. It is written with sorted keys and 4-space indentation so that
// rewrites produce deterministic diffs.
package remotes

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"mbs/cli/internal/errs"
	"mbs/cli/internal/xdg"
)

// StoreFile is the credential file name inside the config directory.
const StoreFile = "remotes.json"

// Record holds the credentials saved for one remote. Username and
// password are omitted when the user opts out of persistent credential
// storage; the session token is always kept.
type Record struct {
	Session  string `json:"session"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Store reads and writes credential records.
type Store struct {
	path string
}

// NewStore returns a store backed by the per-user config directory.
func NewStore() (*Store, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, StoreFile)}, nil
}

// NewStoreAt returns a store backed by an explicit file path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Get returns the record saved for url. A missing store file or unknown
// url is fatal: the user has never logged in against this remote.
func (s *Store) Get(url string) (Record, error) {
	all, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := all[url]
	if !ok {
		return Record{}, errs.Fatal(errs.NotLoggedIn,
			`you are currently not logged in; use "mbs login" with your credentials`)
	}
	return rec, nil
}

// Save replaces the record for url, keeping records of other remotes.
// The store directory and file are created when absent.
func (s *Store) Save(url string, rec Record) error {
	all, err := s.load()
	if err != nil {
		if !errs.IsFatal(err) {
			return err
		}
		all = map[string]Record{} // first login, no store yet
	}
	all[url] = rec

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(all); err != nil {
		return err
	}
	return os.WriteFile(s.path, buf.Bytes(), 0o600)
}

func (s *Store) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Fatal(errs.NotLoggedIn,
				`you are currently not logged in; use "mbs login" with your credentials`)
		}
		return nil, err
	}
	var all map[string]Record
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, errs.Wrap(errs.NotLoggedIn, errs.SeverityFatal,
			"the credential store is not valid JSON", err)
	}
	return all, nil
}
