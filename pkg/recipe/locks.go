// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/invowk/buckle/pkg/version"
)

// ErrIncompleteLock is the sentinel error wrapped by IncompleteLockError.
var ErrIncompleteLock = errors.New("incomplete dependency locks")

type (
	// TransitiveRef points from a resolved dependency to one it requires.
	TransitiveRef struct {
		Coordinate Coordinate
		Target     string
	}

	// ResolvedDependency is the pinned outcome of resolution for one coordinate.
	ResolvedDependency struct {
		Version  version.Version
		Source   Source
		Target   string
		Resource *RemoteFile
		Requires []TransitiveRef
	}

	// DependencyLocks is the closed set of pinned dependencies for a project.
	// Every coordinate the root or any pinned dependency refers to is present.
	DependencyLocks struct {
		root     DependencyGroup
		resolved map[Coordinate]ResolvedDependency
	}

	// IncompleteLockError lists what prevented a DependencyLocks from closing.
	IncompleteLockError struct {
		Missing     []Coordinate
		Unsatisfied []Dependency
	}
)

// Error implements the error interface.
func (e *IncompleteLockError) Error() string {
	var parts []string
	for _, c := range e.Missing {
		parts = append(parts, "missing "+c.Encode())
	}
	for _, d := range e.Unsatisfied {
		parts = append(parts, "unsatisfied "+d.Encode())
	}
	return fmt.Sprintf("incomplete dependency locks: %s", strings.Join(parts, ", "))
}

// Unwrap returns ErrIncompleteLock for errors.Is() compatibility.
func (e *IncompleteLockError) Unwrap() error { return ErrIncompleteLock }

// NewLocks checks that resolved covers root and every transitive reference,
// and that each root requirement holds for its pinned version.
func NewLocks(root DependencyGroup, resolved map[Coordinate]ResolvedDependency) (DependencyLocks, error) {
	missing := map[Coordinate]struct{}{}
	var unsatisfied []Dependency

	for _, d := range root.Dependencies() {
		rd, ok := resolved[d.Coordinate]
		if !ok {
			missing[d.Coordinate] = struct{}{}
			continue
		}
		if !d.Requirement.Satisfies(rd.Version) {
			unsatisfied = append(unsatisfied, d)
		}
	}
	for _, rd := range resolved {
		for _, ref := range rd.Requires {
			if _, ok := resolved[ref.Coordinate]; !ok {
				missing[ref.Coordinate] = struct{}{}
			}
		}
	}

	if len(missing) > 0 || len(unsatisfied) > 0 {
		return DependencyLocks{}, &IncompleteLockError{
			Missing:     slices.SortedFunc(maps.Keys(missing), Coordinate.Compare),
			Unsatisfied: unsatisfied,
		}
	}
	return DependencyLocks{root: root, resolved: maps.Clone(resolved)}, nil
}

// MustNewLocks is like NewLocks but panics when the locks are incomplete.
func MustNewLocks(root DependencyGroup, resolved map[Coordinate]ResolvedDependency) DependencyLocks {
	locks, err := NewLocks(root, resolved)
	if err != nil {
		panic(err)
	}
	return locks
}

// Root returns the declared dependencies the locks were built for.
func (l DependencyLocks) Root() DependencyGroup { return l.root }

// Len returns the number of pinned coordinates.
func (l DependencyLocks) Len() int { return len(l.resolved) }

// Get returns the pinned dependency for c.
func (l DependencyLocks) Get(c Coordinate) (ResolvedDependency, bool) {
	rd, ok := l.resolved[c]
	return rd, ok
}

// Coordinates returns every pinned coordinate in sorted order.
func (l DependencyLocks) Coordinates() []Coordinate {
	return slices.SortedFunc(maps.Keys(l.resolved), Coordinate.Compare)
}

// Versions returns the pinned version of each coordinate.
func (l DependencyLocks) Versions() map[Coordinate]version.Version {
	out := make(map[Coordinate]version.Version, len(l.resolved))
	for c, rd := range l.resolved {
		out[c] = rd.Version
	}
	return out
}
