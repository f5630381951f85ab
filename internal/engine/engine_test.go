// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbs/cli/internal/card"
	"mbs/cli/internal/errs"
	"mbs/cli/internal/remotes"
	"mbs/cli/internal/repo"
)

func testEngine(t *testing.T, serverURL string) *Engine {
	t.Helper()
	store := remotes.NewStoreAt(filepath.Join(t.TempDir(), remotes.StoreFile))
	require.NoError(t, store.Save(serverURL, remotes.Record{Session: "tok", Username: "u", Password: "p"}))
	return &Engine{
		cfg:           repo.Config{URL: serverURL},
		store:         store,
		log:           pterm.DefaultLogger.WithWriter(io.Discard),
		includeFolder: DefaultIncludeFolder,
	}
}

func taggedCard(id int, name string) card.Card {
	return card.Card{
		"id":          float64(id),
		"name":        name,
		"description": nil,
		"query_type":  "native",
		"dataset_query": map[string]any{
			"type": "native",
			"native": map[string]any{
				"query": "SELECT 1 -- " + card.Tag,
			},
		},
		"created_at":         "2022-01-01T00:00:00Z",
		"updated_at":         "2022-02-01T00:00:00Z",
		"creator_id":         float64(3),
		"average_query_time": float64(12.5),
	}
}

func cardListServer(t *testing.T, cards []card.Card) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/card":
			require.NoError(t, json.NewEncoder(w).Encode(cards))
		default:
			http.NotFound(w, r)
		}
	}))
}

func readCardFile(t *testing.T, filename string) card.Card {
	t.Helper()
	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	c, err := card.Parse(data)
	require.NoError(t, err)
	return c
}

func TestPullWritesOnlyTaggedCards(t *testing.T) {
	t.Chdir(t.TempDir())

	untagged := card.Card{
		"id":          float64(8),
		"name":        "handmade",
		"description": "no marker here",
		"dataset_query": map[string]any{
			"native": map[string]any{"query": "SELECT 2"},
		},
	}
	srv := cardListServer(t, []card.Card{taggedCard(7, "A/B: Report (v2)!!"), untagged})
	defer srv.Close()

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Pull(context.Background(), 0, false))

	written := readCardFile(t, "7 - AB Report v2.json")
	id, _ := written.ID()
	assert.Equal(t, 7, id)
	assert.NotContains(t, written, "created_at")
	assert.NotContains(t, written, "updated_at")
	assert.NotContains(t, written, "creator_id")
	assert.NotContains(t, written, "average_query_time")

	_, err := os.Stat("8 - handmade.json")
	assert.True(t, os.IsNotExist(err), "untagged card must not be written")
}

func TestPullIsIdempotentWithoutOverwrite(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := cardListServer(t, []card.Card{taggedCard(7, "report")})
	defer srv.Close()

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Pull(context.Background(), 0, false))

	// local edit must survive a second pull
	edited := []byte(`{"id": 7, "name": "report", "note": "local edit"}`)
	require.NoError(t, os.WriteFile("7 - report.json", edited, 0o644))

	require.NoError(t, eng.Pull(context.Background(), 0, false))
	data, err := os.ReadFile("7 - report.json")
	require.NoError(t, err)
	assert.Equal(t, edited, data)

	entries, err := filepath.Glob("*.json")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "pull must never duplicate a file")
}

func TestPullOverwriteReplacesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/card/7", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(taggedCard(7, "report")))
	}))
	defer srv.Close()

	stale := []byte(`{"id": 7, "name": "report", "note": "stale"}`)
	require.NoError(t, os.WriteFile("7 - report.json", stale, 0o644))

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Pull(context.Background(), 7, true))

	written := readCardFile(t, "7 - report.json")
	assert.NotContains(t, written, "note")
	q, ok := written.NativeQuery()
	require.True(t, ok)
	assert.Contains(t, q, card.Tag)
}

func TestPullSingleCardIgnoresTag(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(card.Card{
			"id":   float64(9),
			"name": "untagged",
		}))
	}))
	defer srv.Close()

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Pull(context.Background(), 9, false))
	_, err := os.Stat("9 - untagged.json")
	assert.NoError(t, err, "an explicitly requested card is written without a tag check")
}

func TestMergeKeepsLocalNativeQuery(t *testing.T) {
	t.Chdir(t.TempDir())

	remote := taggedCard(7, "report")
	remote["description"] = "fresh remote description"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/card/7", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(remote))
	}))
	defer srv.Close()

	localQuery := "SELECT local_edit -- " + card.Tag
	local := card.Card{
		"id":         float64(7),
		"name":       "report",
		"query_type": "native",
		"dataset_query": map[string]any{
			"native": map[string]any{"query": localQuery},
		},
	}
	b, err := local.MarshalPretty()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile("7 - report.json", b, 0o644))

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Merge(context.Background(), "7 - report.json"))

	merged := readCardFile(t, "7 - report.json")
	q, ok := merged.NativeQuery()
	require.True(t, ok)
	assert.Equal(t, localQuery, q, "local query text wins")
	assert.Equal(t, "fresh remote description", merged["description"], "remote metadata wins")
	assert.NotContains(t, merged, "created_at", "server-managed fields stripped")
}

func TestMergeSkipsNonNativeQueries(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(card.Card{
			"id":         float64(7),
			"name":       "report",
			"query_type": "query",
		}))
	}))
	defer srv.Close()

	content := []byte(`{"id": 7, "name": "report", "query_type": "query"}`)
	require.NoError(t, os.WriteFile("7 - report.json", content, 0o644))

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Merge(context.Background(), "7 - report.json"))

	data, err := os.ReadFile("7 - report.json")
	require.NoError(t, err)
	assert.Equal(t, content, data, "non-native merge must not write")
}

func TestMergeSkipsFilesWithoutID(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a file without an id")
	}))
	defer srv.Close()

	require.NoError(t, os.WriteFile("note.json", []byte(`{"name": "no id"}`), 0o644))

	eng := testEngine(t, srv.URL)
	assert.NoError(t, eng.Merge(context.Background(), "note.json"))
}

func TestPushUploadsRenderedCard(t *testing.T) {
	t.Chdir(t.TempDir())

	var uploaded card.Card
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/card/7", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&uploaded))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	content := `{"id": 7, "name": "report", "description": "` + card.Tag + ` from {{ mbs_url }}"}`
	require.NoError(t, os.WriteFile("7 - report.json", []byte(content), 0o644))

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Push(context.Background(), "7 - report.json", false))

	id, _ := uploaded.ID()
	assert.Equal(t, 7, id)
	desc, _ := uploaded.Description()
	assert.Contains(t, desc, "from "+srv.URL)
}

func TestPushRejectsOutputWithoutTag(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("nothing may be uploaded when the tag is missing")
	}))
	defer srv.Close()

	require.NoError(t, os.WriteFile("7 - report.json", []byte(`{"id": 7, "name": "report"}`), 0o644))

	eng := testEngine(t, srv.URL)
	err := eng.Push(context.Background(), "7 - report.json", false)
	require.Error(t, err)
	assert.True(t, errs.IsRecoverable(err))
	assert.Equal(t, errs.TagMissing, errs.KindOf(err))
}

func TestPushRenderOnlyDoesNotUpload(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("render-only push must not touch the server")
	}))
	defer srv.Close()

	content := `{"id": 7, "name": "report", "description": "` + card.Tag + `"}`
	require.NoError(t, os.WriteFile("7 - report.json", []byte(content), 0o644))

	eng := testEngine(t, srv.URL)
	assert.NoError(t, eng.Push(context.Background(), "7 - report.json", true))
}

func TestPushBatchFailsFast(t *testing.T) {
	t.Chdir(t.TempDir())

	puts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		puts++
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// walked in lexical order: the tagless file aborts the batch before b
	require.NoError(t, os.WriteFile("a.json", []byte(`{"id": 1, "name": "a"}`), 0o644))
	valid := `{"id": 2, "name": "b", "description": "` + card.Tag + `"}`
	require.NoError(t, os.WriteFile("b.json", []byte(valid), 0o644))

	eng := testEngine(t, srv.URL)
	err := eng.Push(context.Background(), "", false)
	require.Error(t, err)
	assert.Equal(t, errs.TagMissing, errs.KindOf(err))
	assert.Zero(t, puts, "no file after the failure may be uploaded")
}

func TestPushBatchSkipsIncludeFolder(t *testing.T) {
	t.Chdir(t.TempDir())

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	valid := `{"id": 7, "name": "report", "description": "` + card.Tag + `"}`
	require.NoError(t, os.WriteFile("7 - report.json", []byte(valid), 0o644))
	require.NoError(t, os.MkdirAll("include", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("include", "meta.json"), []byte(`not even json`), 0o644))

	eng := testEngine(t, srv.URL)
	require.NoError(t, eng.Push(context.Background(), "", false))
	assert.Equal(t, []string{"/api/card/7"}, paths)
}

func TestUnderFolder(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		folder string
		want   bool
	}{
		{name: "direct child", file: "include/meta.json", folder: "include", want: true},
		{name: "nested child", file: "sub/include/meta.json", folder: "include", want: true},
		{name: "outside", file: "reports/7.json", folder: "include", want: false},
		{name: "similar prefix", file: "reports-include/7.json", folder: "include", want: false},
		{name: "top level file", file: "7.json", folder: "include", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := underFolder(tt.file, tt.folder); got != tt.want {
				t.Errorf("underFolder(%q, %q) = %v, want %v", tt.file, tt.folder, got, tt.want)
			}
		})
	}
}
