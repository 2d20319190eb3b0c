// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

type (
	// Issue is one problem found in a file. Path is in JSON-path notation,
	// for example "dependencies[0].name", and is empty for file-level issues.
	Issue struct {
		Path    string
		Message string
	}

	// ValidationError lists every issue found in one file.
	ValidationError struct {
		File   string
		Issues []Issue
	}
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return e.File + ": " + e.Issues[0].String()
	}
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		lines[i] = is.String()
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// String renders "path: message", or just the message without a path.
func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// FormatError converts a CUE error into a *ValidationError for file. Errors
// that carry no CUE detail are wrapped with the file name.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", file, err)
	}

	out := &ValidationError{File: file}
	for _, e := range list {
		path := jsonPath(cueerrors.Path(e))
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		out.Issues = append(out.Issues, Issue{Path: path, Message: msg})
	}
	return out
}

// jsonPath renders ["deps", "0", "name"] as "deps[0].name". Leading
// definition selectors such as "#Config" name the schema, not the file, and
// are dropped.
func jsonPath(parts []string) string {
	for len(parts) > 0 && strings.HasPrefix(parts[0], "#") {
		parts = parts[1:]
	}
	var b strings.Builder
	for i, p := range parts {
		switch {
		case i > 0 && isIndex(p):
			b.WriteString("[" + p + "]")
		case i > 0:
			b.WriteString("." + p)
		default:
			b.WriteString(p)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
