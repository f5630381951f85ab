// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine orchestrates the sync workflows: pull remote cards into
// local files, render and push local templates to the server, and merge
// remote metadata into locally edited query text.
//
// An Engine is constructed fresh per CLI invocation from the repository
// marker and the credential store; there is no ambient state.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"mbs/cli/internal/api"
	"mbs/cli/internal/card"
	"mbs/cli/internal/remotes"
	"mbs/cli/internal/render"
	"mbs/cli/internal/repo"
)

// DefaultIncludeFolder is where the template engine looks for include
// files unless overridden on the command line.
const DefaultIncludeFolder = "include"

// Engine holds the collaborators of one invocation.
type Engine struct {
	cfg           repo.Config
	store         *remotes.Store
	log           *pterm.Logger
	includeFolder string

	client   *api.Client      // built on first authenticated call
	renderer *render.Renderer // built on first render
}

// New loads the repository marker and the credential store. It fails
// outside an initialized repository; credentials are resolved lazily so
// that login itself works before any are saved.
func New(log *pterm.Logger, includeFolder string) (*Engine, error) {
	cfg, err := repo.Load()
	if err != nil {
		return nil, err
	}
	store, err := remotes.NewStore()
	if err != nil {
		return nil, err
	}
	if includeFolder == "" {
		includeFolder = DefaultIncludeFolder
	}
	return &Engine{cfg: cfg, store: store, log: log, includeFolder: includeFolder}, nil
}

func (e *Engine) api() (*api.Client, error) {
	if e.client == nil {
		c, err := api.New(e.cfg.URL, e.store)
		if err != nil {
			return nil, err
		}
		e.client = c
	}
	return e.client, nil
}

func (e *Engine) render(filename string) (string, error) {
	if e.renderer == nil {
		r, err := render.New(e.log, e.cfg.URL, e.includeFolder)
		if err != nil {
			return "", err
		}
		e.renderer = r
	}
	return e.renderer.Render(filename)
}

// Login authenticates against the remote and persists the session.
func (e *Engine) Login(ctx context.Context, username, password string, save bool) error {
	client := api.NewUnauthenticated(e.cfg.URL, e.store)
	if err := client.Login(ctx, username, password, save); err != nil {
		return err
	}
	e.log.Info("Login successful.")
	return nil
}

// Pull fetches cards from the remote and writes them as local files.
// With cardID > 0 exactly that card is fetched and written. Otherwise
// every remote card carrying the ownership tag is written, skipping ids
// that already exist somewhere in the local tree.
func (e *Engine) Pull(ctx context.Context, cardID int, overwrite bool) error {
	client, err := e.api()
	if err != nil {
		return err
	}

	if cardID > 0 {
		b, err := client.Get(ctx, "/api/card/"+strconv.Itoa(cardID))
		if err != nil {
			return err
		}
		c, err := card.Parse(b)
		if err != nil {
			return err
		}
		return e.writeCard(c, overwrite, "")
	}

	existing := e.existingIDs()
	b, err := client.Get(ctx, "/api/card")
	if err != nil {
		return err
	}
	var cards []card.Card
	if err := json.Unmarshal(b, &cards); err != nil {
		return err
	}

	found := 0
	for _, c := range cards {
		id, ok := c.ID()
		if !ok {
			continue
		}
		if existing[id] {
			e.log.Info(fmt.Sprintf("Skipping already existing id %d.", id))
			continue
		}
		if !c.Tagged() {
			continue
		}
		if err := e.writeCard(c, overwrite, ""); err != nil {
			return err
		}
		found++
	}
	e.log.Info(fmt.Sprintf("Found %d new cards/questions with the mbs tag %q.", found, card.Tag))
	return nil
}

// Push renders, validates and uploads a single file, or every JSON file
// under the working tree outside the include folder. Batch mode is
// fail-fast: the first failing file aborts the rest.
func (e *Engine) Push(ctx context.Context, filename string, renderOnly bool) error {
	if filename != "" {
		return e.pushFile(ctx, filename, renderOnly)
	}
	files, err := e.jsonFiles(e.includeFolder)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.pushFile(ctx, f, renderOnly); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pushFile(ctx context.Context, filename string, renderOnly bool) error {
	if renderOnly {
		e.log.Info("Rendering file: " + filename)
	} else {
		e.log.Info("Rendering and uploading file: " + filename)
	}
	out, err := e.render(filename)
	if err != nil {
		return err
	}
	if renderOnly {
		e.log.Info(fmt.Sprintf("Rendered %q to:", filename))
		fmt.Println(out)
	}
	c, err := card.Check(e.log, out)
	if err != nil {
		return err
	}
	if renderOnly {
		return nil
	}
	client, err := e.api()
	if err != nil {
		return err
	}
	id, _ := c.ID()
	_, err = client.Put(ctx, fmt.Sprintf("/api/card/%d", id), c)
	return err
}

// Merge updates a local file (or all local files) with the current remote
// card, keeping only the local native query text. Files without an id and
// cards that are not native queries are logged and skipped; the batch
// continues past them.
func (e *Engine) Merge(ctx context.Context, filename string) error {
	if filename != "" {
		return e.mergeFile(ctx, filename)
	}
	files, err := e.jsonFiles("")
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.mergeFile(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) mergeFile(ctx context.Context, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		e.log.Error(fmt.Sprintf("File %q wasn't found.", filename))
		return nil
	}
	local, err := card.Parse(data)
	if err != nil {
		e.log.Error(fmt.Sprintf("%s: This file is not valid JSON.", filename))
		return nil
	}
	id, ok := local.ID()
	if !ok {
		e.log.Error(fmt.Sprintf("%s: There is no card/question id in this file.", filename))
		return nil
	}

	client, err := e.api()
	if err != nil {
		return err
	}
	b, err := client.Get(ctx, "/api/card/"+strconv.Itoa(id))
	if err != nil {
		return err
	}
	remote, err := card.Parse(b)
	if err != nil {
		return err
	}

	// Only native queries have a stable local text representation to merge.
	if local.QueryType() != "native" || remote.QueryType() != "native" {
		e.log.Warn(fmt.Sprintf("%s: \"merge\" currently supports only native sql queries.", filename))
		return nil
	}
	query, ok := local.NativeQuery()
	if !ok {
		e.log.Warn(fmt.Sprintf("%s: There is no native query text in this file.", filename))
		return nil
	}
	remote.SetNativeQuery(query)
	return e.writeCard(remote, true, filename)
}

// writeCard strips the server-managed fields and persists the card. An
// existing file is left untouched unless overwrite is set, logged as a
// warning so batch pulls continue past it.
func (e *Engine) writeCard(c card.Card, overwrite bool, filename string) error {
	id, _ := c.ID()
	name, _ := c.Name()
	e.log.Info(fmt.Sprintf("Found mbs tag on cards/questions: %d (%s)", id, name))
	if filename == "" {
		filename = card.Filename(id, name)
	}
	if _, err := os.Stat(filename); err == nil && !overwrite {
		e.log.Warn(fmt.Sprintf("File %q already exists. You can force to overwrite with the \"-o\" flag.", filename))
		return nil
	}

	c.StripServerManaged()
	b, err := c.MarshalPretty()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, b, 0o644); err != nil {
		return err
	}
	e.log.Info(fmt.Sprintf("Wrote %q.", filename))
	return nil
}

// existingIDs collects the card ids already present in the local tree.
// Files that cannot be parsed or lack an id are ignored, not errors.
func (e *Engine) existingIDs() map[int]bool {
	ids := map[int]bool{}
	files, err := e.jsonFiles("")
	if err != nil {
		return ids
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		c, err := card.Parse(data)
		if err != nil {
			continue
		}
		if id, ok := c.ID(); ok {
			ids[id] = true
		}
	}
	return ids
}

// jsonFiles walks the working tree for *.json files. When exclude is
// non-empty, files whose directory path contains it as a segment are
// skipped (used to keep template includes out of batch pushes).
func (e *Engine) jsonFiles(exclude string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		if exclude != "" && underFolder(path, exclude) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// underFolder reports whether the directory path of file contains folder
// as a path segment.
func underFolder(file, folder string) bool {
	dir := filepath.ToSlash(filepath.Dir(file))
	folder = strings.Trim(filepath.ToSlash(folder), "/")
	for _, seg := range strings.Split(dir, "/") {
		if seg != "" && seg == folder {
			return true
		}
	}
	return false
}
