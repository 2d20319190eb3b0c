// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

var (
	// ErrNotFound is the sentinel error wrapped by NotFoundError.
	ErrNotFound = errors.New("recipe not found")

	// ErrUnsatisfiable is the sentinel error wrapped by UnsatisfiableError.
	ErrUnsatisfiable = errors.New("version requirement unsatisfiable")

	// ErrConflict is the sentinel error wrapped by ConflictError.
	ErrConflict = errors.New("conflicting version requirements")

	// ErrResolutionFailed matches any FailedError.
	ErrResolutionFailed = errors.New("dependency resolution failed")
)

type (
	// NotFoundError reports a coordinate no catalog knows about. Suggestions
	// holds known coordinates with similar names, most similar first.
	NotFoundError struct {
		Coordinate  recipe.Coordinate
		Suggestions []recipe.Coordinate
	}

	// UnsatisfiableError reports a known coordinate with no version matching
	// the requirement. Available lists the versions that do exist.
	UnsatisfiableError struct {
		Coordinate  recipe.Coordinate
		Requirement version.Requirement
		Available   []version.Version
	}

	// ConflictError reports an edge whose requirement does not hold for the
	// version chosen when the coordinate was first visited. Parent is the zero
	// Coordinate when the edge comes from the root group.
	ConflictError struct {
		Coordinate  recipe.Coordinate
		Requirement version.Requirement
		Chosen      version.Version
		Parent      recipe.Coordinate
	}

	// FailedError aggregates every failure collected during one resolution,
	// in the order they were encountered.
	FailedError struct {
		Failures []error
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("recipe %s not found", e.Coordinate.Encode())
	if len(e.Suggestions) > 0 {
		names := make([]string, len(e.Suggestions))
		for i, s := range e.Suggestions {
			names[i] = s.Encode()
		}
		msg += " (did you mean " + strings.Join(names, ", ") + "?)"
	}
	return msg
}

// Unwrap returns ErrNotFound for errors.Is() compatibility.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Error implements the error interface.
func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("no version of %s satisfies %s", e.Coordinate.Encode(), e.Requirement.Encode())
}

// Unwrap returns ErrUnsatisfiable for errors.Is() compatibility.
func (e *UnsatisfiableError) Unwrap() error { return ErrUnsatisfiable }

// Error implements the error interface.
func (e *ConflictError) Error() string {
	from := "project"
	if e.Parent != (recipe.Coordinate{}) {
		from = e.Parent.Encode()
	}
	return fmt.Sprintf("%s requires %s@%s but %s was selected",
		from, e.Coordinate.Encode(), e.Requirement.Encode(), e.Chosen.Encode())
}

// Unwrap returns ErrConflict for errors.Is() compatibility.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Error implements the error interface.
func (e *FailedError) Error() string {
	lines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		lines[i] = f.Error()
	}
	return fmt.Sprintf("dependency resolution failed with %d error(s): %s", len(e.Failures), strings.Join(lines, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *FailedError) Unwrap() []error { return e.Failures }

// Is reports whether target is ErrResolutionFailed.
func (e *FailedError) Is(target error) bool { return target == ErrResolutionFailed }

// isResolutionFailure reports whether err is a per-coordinate failure that
// should be collected rather than abort the walk.
func isResolutionFailure(err error) bool {
	var (
		nf *NotFoundError
		us *UnsatisfiableError
	)
	return errors.As(err, &nf) || errors.As(err, &us)
}
