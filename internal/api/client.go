// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package api implements the authenticated REST client for the remote
// Metabase server. Requests carry the stored session token; a response
// whose body is exactly "Unauthenticated" triggers one transparent
// re-login with the saved credentials and a single retry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"mbs/cli/internal/errs"
	"mbs/cli/internal/remotes"
)

const (
	userAgent      = "MetaBaseSync"
	contentType    = "application/json; charset=utf-8"
	sessionHeader  = "X-Metabase-Session"
	sessionPath    = "/api/session"
	requestTimeout = 30 * time.Second
)

// unauthenticatedBody is the literal body the server answers with when
// the session token has expired. Anything else is a hard failure.
const unauthenticatedBody = "Unauthenticated"

// Client issues authenticated requests against one remote.
type Client struct {
	baseURL string
	store   *remotes.Store
	http    *http.Client

	session  string
	username string
	password string
}

// New returns a client for baseURL using the credentials saved in store.
// It fails when the user has never logged in against this remote.
func New(baseURL string, store *remotes.Store) (*Client, error) {
	rec, err := store.Get(baseURL)
	if err != nil {
		return nil, err
	}
	c := NewUnauthenticated(baseURL, store)
	c.session = rec.Session
	c.username = rec.Username
	c.password = rec.Password
	return c, nil
}

// NewUnauthenticated returns a client without a session, suitable only
// for Login.
func NewUnauthenticated(baseURL string, store *remotes.Store) *Client {
	return &Client{
		baseURL: baseURL,
		store:   store,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Get issues an authenticated GET and returns the response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, false)
}

// Put issues an authenticated PUT with body serialized as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, path, b, false)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, retried bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(sessionHeader, c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	ok := resp.StatusCode == http.StatusOK ||
		(method == http.MethodPut && resp.StatusCode == http.StatusAccepted)
	if !ok {
		if string(b) == unauthenticatedBody && !retried {
			if err := c.renewSession(ctx); err != nil {
				return nil, err
			}
			return c.do(ctx, method, path, body, true)
		}
		return nil, errs.Fatal(errs.RequestFailed, "error: "+string(b))
	}
	return b, nil
}

// renewSession logs in again with the saved username and password. It is
// called at most once per request; a second "Unauthenticated" response
// after the retry means the credentials themselves are stale or wrong.
func (c *Client) renewSession(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return errs.Fatal(errs.AuthFailed,
			`can't renew the session because your credentials are not saved; `+
				`please run "mbs login" again without the --dont-save-credentials flag`)
	}
	return c.Login(ctx, c.username, c.password, true)
}

// Login posts the credentials to the session endpoint and stores the
// returned session token. Username and password are persisted only when
// save is true; the prior record for this remote is replaced either way.
func (c *Client) Login(ctx context.Context, username, password string, save bool) error {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusOK {
		var out struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &out); err == nil && out.ID != "" {
			c.session = out.ID
			c.username = username
			c.password = password
			rec := remotes.Record{Session: out.ID}
			if save {
				rec.Username = username
				rec.Password = password
			}
			return c.store.Save(c.baseURL, rec)
		}
	}
	return errs.Fatal(errs.AuthFailed, string(b))
}
