// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"fmt"

	"github.com/invowk/buckle/pkg/cache"
	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

// Phase is the stage an install Step reports.
type Phase int

const (
	// PhaseResolving starts resolution.
	PhaseResolving Phase = iota
	// PhaseResolved reports one pinned coordinate.
	PhaseResolved
	// PhaseUpToDate means the install directory already holds the pinned version.
	PhaseUpToDate
	// PhaseFetching starts fetching a dependency.
	PhaseFetching
	// PhaseCloning starts a git checkout.
	PhaseCloning
	// PhaseCache carries a cache event for a dependency.
	PhaseCache
	// PhaseInstalled means a dependency is in place.
	PhaseInstalled
	// PhaseLockWritten means the lock file was saved.
	PhaseLockWritten
)

// Step is a progress notification from an install.
type Step struct {
	Phase      Phase
	Coordinate recipe.Coordinate
	Version    version.Version
	// Path is the directory or file the step concerns.
	Path string
	// Cache is set for PhaseCache.
	Cache cache.Event
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseResolved:
		return "resolved"
	case PhaseUpToDate:
		return "up-to-date"
	case PhaseFetching:
		return "fetching"
	case PhaseCloning:
		return "cloning"
	case PhaseCache:
		return "cache"
	case PhaseInstalled:
		return "installed"
	case PhaseLockWritten:
		return "lock-written"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}
