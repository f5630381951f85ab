// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render turns local card template files into card JSON.
//
// Templates are jinja2-syntax documents rendered through pongo2. The
// search path is the working directory plus a configurable include
// folder, so shared fragments can be pulled in with {% include %}.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/pterm/pterm"

	"mbs/cli/internal/card"
	"mbs/cli/internal/errs"
)

func init() {
	// The json filter yields the JSON-escaped inner form of a string, for
	// embedding literal text safely inside generated JSON documents.
	if err := pongo2.RegisterFilter("json", jsonFilter); err != nil {
		panic(err)
	}
}

func jsonFilter(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(in.Interface()); err != nil {
		return nil, &pongo2.Error{Sender: "filter:json", OrigError: err}
	}
	s := strings.TrimSuffix(buf.String(), "\n")
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return pongo2.AsValue(s), nil
}

// Renderer renders template files against one repository's context.
type Renderer struct {
	set *pongo2.TemplateSet
	log *pterm.Logger
	url string
}

// searchPathLoader resolves template names against an ordered list of
// directories. pongo2 routes every {% include %} and {% extends %} name
// through the first loader of a set, so a search path has to live inside
// one loader rather than across several.
type searchPathLoader struct {
	dirs []string
}

// Abs maps a template name to the first directory on the search path that
// contains it. Names that resolve nowhere are anchored to the first
// directory so the resulting open error names a sensible path.
func (l *searchPathLoader) Abs(_, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	for _, dir := range l.dirs {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(l.dirs[0], name)
}

func (l *searchPathLoader) Get(path string) (io.Reader, error) {
	return os.Open(path)
}

// New builds a renderer for the repository at the current working
// directory. A missing include folder is not an error; it is simply left
// off the search path.
func New(log *pterm.Logger, url, includeFolder string) (*Renderer, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dirs := []string{cwd}
	if st, err := os.Stat(includeFolder); err == nil && st.IsDir() {
		inc, err := filepath.Abs(includeFolder)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, inc)
	}
	return &Renderer{
		set: pongo2.NewSet("mbs", &searchPathLoader{dirs: dirs}),
		log: log,
		url: url,
	}, nil
}

// Render loads filename as a template and produces the card JSON text.
// Template errors are fatal; output missing the ownership tag is a
// recoverable per-file rejection so batch callers can skip and continue.
func (r *Renderer) Render(filename string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)

	tpl, err := r.set.FromFile(rel)
	if err != nil {
		return "", r.renderError(err)
	}
	out, err := tpl.Execute(pongo2.Context{
		"is_mbs":       true,
		"mbs_url":      r.url,
		"mbs_file":     rel,
		"mbs_file_abs": abs,
	})
	if err != nil {
		return "", r.renderError(err)
	}

	if !strings.Contains(out, card.Tag) {
		return "", errs.Recoverablef(errs.TagMissing,
			"mbs tag (%q) not found in the output! Mark this question/card as controlled "+
				"by mbs, to avoid confusions with online editors", card.Tag)
	}
	return out, nil
}

// renderError reports the offending file, line, message and source line,
// then converts the failure into a fatal error.
func (r *Renderer) renderError(err error) error {
	var perr *pongo2.Error
	if errors.As(err, &perr) {
		r.log.Error(fmt.Sprintf("Render error: %s - Line %d - %v", perr.Filename, perr.Line, perr.OrigError))
		if src := readLine(perr.Filename, perr.Line); src != "" {
			r.log.Error("Line with the error > " + src)
		}
	} else {
		r.log.Error("Render error: " + err.Error())
	}
	return errs.Wrap(errs.RenderFailed, errs.SeverityFatal, "couldn't render template", err)
}

func readLine(filename string, line int) string {
	if filename == "" || line < 1 {
		return ""
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	if line > len(lines) {
		return ""
	}
	return lines[line-1]
}
