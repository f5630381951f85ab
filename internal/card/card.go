// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package card models the remote "card" (saved question) resource and the
// local JSON files derived from it.
//
// A card is an open mapping: the server attaches fields this tool never
// interprets and which must survive a pull/push round trip, so Card wraps
// the raw object and exposes typed accessors only for the handful of
// fields the sync workflows rely on.
package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Tag is the ownership marker. Its presence in a card's native query text
// or description marks the card as managed by this tool; cards without it
// are never adopted or overwritten in bulk operations.
const Tag = "## mbs_controlled ##"

// Card is a remote card object. Fields outside the accessors below are
// carried through untouched.
type Card map[string]any

// serverManagedFields are owned by the server and stripped before a card
// is persisted locally. Deleting an absent field is a no-op.
var serverManagedFields = []string{
	"created_at",
	"creator",
	"creator_id",
	"last-edit-info",
	"made_public_by_id",
	"public_uuid",
	"updated_at",
	"embedding_params",
	"enable_embedding",
	"average_query_time",
	"last_query_start",
	"moderation_reviews",
}

// Parse decodes a card from JSON.
func Parse(data []byte) (Card, error) {
	var c Card
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the numeric card identifier.
func (c Card) ID() (int, bool) {
	f, ok := c["id"].(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Name returns the display name.
func (c Card) Name() (string, bool) {
	s, ok := c["name"].(string)
	return s, ok
}

// Description returns the description when it is a string; the server
// sends null for cards without one.
func (c Card) Description() (string, bool) {
	s, ok := c["description"].(string)
	return s, ok
}

// QueryType returns the query_type field, or "" when absent.
func (c Card) QueryType() string {
	s, _ := c["query_type"].(string)
	return s
}

// NativeQuery returns the raw query text under dataset_query.native.query.
func (c Card) NativeQuery() (string, bool) {
	dq, ok := c["dataset_query"].(map[string]any)
	if !ok {
		return "", false
	}
	native, ok := dq["native"].(map[string]any)
	if !ok {
		return "", false
	}
	q, ok := native["query"].(string)
	return q, ok
}

// SetNativeQuery replaces the native query text. It reports false when
// the card has no dataset_query.native object to write into.
func (c Card) SetNativeQuery(query string) bool {
	dq, ok := c["dataset_query"].(map[string]any)
	if !ok {
		return false
	}
	native, ok := dq["native"].(map[string]any)
	if !ok {
		return false
	}
	native["query"] = query
	return true
}

// Tagged reports whether the ownership tag appears in the card's native
// query text or its description.
func (c Card) Tagged() bool {
	if q, ok := c.NativeQuery(); ok && strings.Contains(q, Tag) {
		return true
	}
	if d, ok := c.Description(); ok && strings.Contains(d, Tag) {
		return true
	}
	return false
}

// StripServerManaged removes the fields the server manages itself.
func (c Card) StripServerManaged() {
	for _, k := range serverManagedFields {
		delete(c, k)
	}
}

// MarshalPretty serializes the card with sorted keys and 4-space
// indentation, without HTML escaping, matching the local file format.
func (c Card) MarshalPretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(map[string]any(c)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename derives the local file name for a card.
func Filename(id int, name string) string {
	return fmt.Sprintf("%d - %s.json", id, SanitizeName(name))
}

// SanitizeName reduces a card name to characters safe in file names:
// letters, digits, space, dot, underscore and hyphen. Trailing spaces are
// trimmed and the result is capped at 256 characters.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) ||
			r == ' ' || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := strings.TrimRight(b.String(), " ")
	if runes := []rune(s); len(runes) > 256 {
		s = string(runes[:256])
	}
	return s
}
