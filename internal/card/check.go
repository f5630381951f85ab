// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"mbs/cli/internal/errs"
)

// Check validates card data before it is uploaded. It accepts raw JSON
// text ([]byte or string) or an already-parsed Card.
//
// Malformed JSON is a recoverable error: the offending line is reported
// and the caller may skip the file. Well-formed JSON missing the required
// id or name field is fatal: the payload is syntactically valid but
// semantically unusable and must not be uploaded.
func Check(log *pterm.Logger, data any) (Card, error) {
	var c Card
	switch d := data.(type) {
	case Card:
		c = d
	case map[string]any:
		c = Card(d)
	case []byte:
		return checkText(log, string(d))
	case string:
		return checkText(log, d)
	default:
		return nil, fmt.Errorf("check: unsupported data type %T", data)
	}
	return c, checkFields(log, c)
}

func checkText(log *pterm.Logger, text string) (Card, error) {
	var c Card
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		log.Error("JSON decode error while checking this output:")
		line := syntaxErrorLine(text, err)
		log.Error(fmt.Sprintf("Render error: Line %d - %v", line, err))
		if src := sourceLine(text, line); src != "" {
			log.Error("Line with the error > " + src)
		}
		return nil, errs.Wrap(errs.JSONInvalid, errs.SeverityRecoverable, "JSON invalid", err)
	}
	return c, checkFields(log, c)
}

func checkFields(log *pterm.Logger, c Card) error {
	invalid := false
	if _, ok := c["id"]; !ok {
		log.Error("There is no id set in your data.")
		invalid = true
	}
	if _, ok := c["name"]; !ok {
		log.Error("There is no name set in your data.")
		invalid = true
	}
	if invalid {
		return errs.Fatal(errs.DataInvalid, "data invalid")
	}
	return nil
}

// syntaxErrorLine locates the 1-based line of a JSON decoding error.
func syntaxErrorLine(text string, err error) int {
	var offset int64
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syn):
		offset = syn.Offset
	case errors.As(err, &typ):
		offset = typ.Offset
	default:
		return 1
	}
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}
	return 1 + strings.Count(text[:offset], "\n")
}

func sourceLine(text string, line int) string {
	lines := strings.Split(text, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return lines[line-1]
}
