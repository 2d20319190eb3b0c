// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"maps"
	"slices"

	"github.com/invowk/buckle/pkg/version"
)

// ErrInvalidRequirement is returned when a requirement string cannot be parsed.
var ErrInvalidRequirement = errors.New("invalid version requirement")

// DependencyGroup is an immutable set of requirements keyed by coordinate.
// The zero value is an empty group. Mutating operations return a new group and
// leave the receiver untouched.
type DependencyGroup struct {
	reqs map[Coordinate]version.Requirement
}

// NewGroup builds a group from deps. A later entry for the same coordinate
// replaces an earlier one.
func NewGroup(deps ...Dependency) DependencyGroup {
	if len(deps) == 0 {
		return DependencyGroup{}
	}
	reqs := make(map[Coordinate]version.Requirement, len(deps))
	for _, d := range deps {
		reqs[d.Coordinate] = requirementOrAny(d.Requirement)
	}
	return DependencyGroup{reqs: reqs}
}

func requirementOrAny(r version.Requirement) version.Requirement {
	if r == nil {
		return version.Any{}
	}
	return r
}

// Len returns the number of declared coordinates.
func (g DependencyGroup) Len() int { return len(g.reqs) }

// IsEmpty reports whether nothing is declared.
func (g DependencyGroup) IsEmpty() bool { return len(g.reqs) == 0 }

// Requirement returns the requirement declared for c.
func (g DependencyGroup) Requirement(c Coordinate) (version.Requirement, bool) {
	r, ok := g.reqs[c]
	return r, ok
}

// Coordinates returns the declared coordinates in sorted order.
func (g DependencyGroup) Coordinates() []Coordinate {
	return slices.SortedFunc(maps.Keys(g.reqs), Coordinate.Compare)
}

// Dependencies returns the entries sorted by coordinate.
func (g DependencyGroup) Dependencies() []Dependency {
	coords := g.Coordinates()
	deps := make([]Dependency, len(coords))
	for i, c := range coords {
		deps[i] = Dependency{Coordinate: c, Requirement: g.reqs[c]}
	}
	return deps
}

// Add returns a group in which c requires r. When c already requires an equal
// requirement the receiver itself is returned.
func (g DependencyGroup) Add(c Coordinate, r version.Requirement) DependencyGroup {
	r = requirementOrAny(r)
	if existing, ok := g.reqs[c]; ok && version.Equal(existing, r) {
		return g
	}
	reqs := make(map[Coordinate]version.Requirement, len(g.reqs)+1)
	maps.Copy(reqs, g.reqs)
	reqs[c] = r
	return DependencyGroup{reqs: reqs}
}

// Remove returns a group without c. When c is not declared the receiver itself
// is returned.
func (g DependencyGroup) Remove(c Coordinate) DependencyGroup {
	if _, ok := g.reqs[c]; !ok {
		return g
	}
	reqs := maps.Clone(g.reqs)
	delete(reqs, c)
	return DependencyGroup{reqs: reqs}
}

// Union returns a group holding both sides. Requirements in other override
// those in g for the same coordinate.
func (g DependencyGroup) Union(other DependencyGroup) DependencyGroup {
	out := g
	for c, r := range other.reqs {
		out = out.Add(c, r)
	}
	return out
}

// Equal reports whether both groups declare the same requirements.
func (g DependencyGroup) Equal(other DependencyGroup) bool {
	return maps.EqualFunc(g.reqs, other.reqs, version.Equal)
}

// IsSatisfiedBy reports whether every declared coordinate is present in
// resolved with a version satisfying its requirement.
func (g DependencyGroup) IsSatisfiedBy(resolved map[Coordinate]version.Version) bool {
	for c, r := range g.reqs {
		v, ok := resolved[c]
		if !ok || !r.Satisfies(v) {
			return false
		}
	}
	return true
}
