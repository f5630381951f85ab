// Copyright (c) 2025 MBS
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errs defines typed errors with categories and severities for
// user-friendly reporting. Every expected failure in the tool is either
// recoverable (an operation-specific problem the caller may log and skip)
// or fatal (the invocation cannot continue). The CLI boundary is the only
// place a severity is mapped to a process exit code.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// RepoExists indicates init on an already initialized directory.
	RepoExists Kind = "repo_exists"
	// RepoMissing indicates an operation outside an initialized repository.
	RepoMissing Kind = "repo_missing"
	// RepoInvalid indicates an unreadable repository marker file.
	RepoInvalid Kind = "repo_invalid"
	// NotLoggedIn indicates missing credentials for the configured remote.
	NotLoggedIn Kind = "not_logged_in"
	// AuthFailed indicates a failed login or session renewal.
	AuthFailed Kind = "auth_failed"
	// RequestFailed indicates a non-success API response.
	RequestFailed Kind = "request_failed"
	// RenderFailed indicates a template that could not be rendered.
	RenderFailed Kind = "render_failed"
	// TagMissing indicates rendered output without the ownership tag.
	TagMissing Kind = "tag_missing"
	// JSONInvalid indicates syntactically malformed card JSON.
	JSONInvalid Kind = "json_invalid"
	// DataInvalid indicates well-formed JSON missing required card fields.
	DataInvalid Kind = "data_invalid"
)

// Severity classifies how the CLI boundary must treat an error.
type Severity int

const (
	// SeverityRecoverable errors are logged and exit with their own code;
	// batch operations may log and continue past them.
	SeverityRecoverable Severity = iota + 1
	// SeverityFatal errors abort the whole invocation.
	SeverityFatal
)

// E wraps an error with kind, severity and a human-friendly message.
type E struct {
	Kind     Kind
	Severity Severity
	Message  string
	Err      error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Err }

// Fatal returns a new fatal error of the given kind.
func Fatal(kind Kind, msg string) *E {
	return &E{Kind: kind, Severity: SeverityFatal, Message: msg}
}

// Fatalf returns a new fatal error with a formatted message.
func Fatalf(kind Kind, format string, a ...any) *E {
	return Fatal(kind, fmt.Sprintf(format, a...))
}

// Recoverable returns a new recoverable error of the given kind.
func Recoverable(kind Kind, msg string) *E {
	return &E{Kind: kind, Severity: SeverityRecoverable, Message: msg}
}

// Recoverablef returns a new recoverable error with a formatted message.
func Recoverablef(kind Kind, format string, a ...any) *E {
	return Recoverable(kind, fmt.Sprintf(format, a...))
}

// Wrap attaches kind and severity to an underlying error.
func Wrap(kind Kind, sev Severity, msg string, err error) *E {
	return &E{Kind: kind, Severity: sev, Message: msg, Err: err}
}

// IsFatal reports whether err carries a fatal severity.
func IsFatal(err error) bool {
	var e *E
	return errors.As(err, &e) && e.Severity == SeverityFatal
}

// IsRecoverable reports whether err carries a recoverable severity.
func IsRecoverable(err error) bool {
	var e *E
	return errors.As(err, &e) && e.Severity == SeverityRecoverable
}

// KindOf returns the kind of err, or the empty kind for untyped errors.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
