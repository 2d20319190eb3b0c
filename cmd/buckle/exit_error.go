// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

// Exit codes returned by buckle.
const (
	// ExitFailure is a generic failure.
	ExitFailure = 1
	// ExitResolution means dependency resolution failed.
	ExitResolution = 2
	// ExitIntegrity means a download did not match its recorded hash, or a
	// cache verification found bad entries.
	ExitIntegrity = 3
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
