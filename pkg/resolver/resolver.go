// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

type (
	// DependencyFetcher looks up the candidate versions of a coordinate that
	// satisfy req, along with each candidate's own dependencies. It reports
	// missing coordinates with *NotFoundError and unmatched requirements with
	// *UnsatisfiableError; any other error aborts resolution.
	DependencyFetcher interface {
		Fetch(ctx context.Context, c recipe.Coordinate, req version.Requirement) (map[version.Version]recipe.DependencyGroup, error)
	}

	// FetcherFunc adapts a function to DependencyFetcher.
	FetcherFunc func(ctx context.Context, c recipe.Coordinate, req version.Requirement) (map[version.Version]recipe.DependencyGroup, error)

	// Option configures a Resolver.
	Option func(*Resolver)

	// Resolver walks the dependency graph breadth-first, choosing the highest
	// acceptable version of each coordinate the first time it is reached.
	Resolver struct {
		fetcher DependencyFetcher
		logger  *log.Logger
	}

	// edge is a requirement placed on a coordinate by a parent. The zero
	// parent is the project root.
	edge struct {
		parent recipe.Coordinate
		dep    recipe.Dependency
	}
)

// Fetch implements DependencyFetcher.
func (f FetcherFunc) Fetch(ctx context.Context, c recipe.Coordinate, req version.Requirement) (map[version.Version]recipe.DependencyGroup, error) {
	return f(ctx, c, req)
}

// WithLogger sets the logger used for debug tracing of the walk.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver backed by fetcher.
func New(fetcher DependencyFetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is shorthand for New(fetcher).Resolve(ctx, root).
func Resolve(ctx context.Context, root recipe.DependencyGroup, fetcher DependencyFetcher) (map[recipe.Coordinate]version.Version, error) {
	return New(fetcher).Resolve(ctx, root)
}

// Resolve pins one version per coordinate reachable from root.
//
// Each coordinate is fetched once, with the requirement of the first edge that
// reaches it; the walk is breadth-first and visits siblings in coordinate
// order, so the result is deterministic. Missing coordinates and unsatisfiable
// requirements are collected and the walk continues; once it ends, edges that
// reached an already chosen coordinate are checked against that choice. If
// anything failed, a *FailedError listing every failure is returned. Other
// fetcher errors stop the walk immediately.
func (r *Resolver) Resolve(ctx context.Context, root recipe.DependencyGroup) (map[recipe.Coordinate]version.Version, error) {
	resolved := make(map[recipe.Coordinate]version.Version)
	seen := make(map[recipe.Coordinate]struct{})
	var (
		queue    []edge
		deferred []edge
		failures []error
	)

	schedule := func(parent recipe.Coordinate, group recipe.DependencyGroup) {
		for _, dep := range group.Dependencies() {
			e := edge{parent: parent, dep: dep}
			if _, ok := seen[dep.Coordinate]; ok {
				deferred = append(deferred, e)
				continue
			}
			seen[dep.Coordinate] = struct{}{}
			queue = append(queue, e)
		}
	}
	schedule(recipe.Coordinate{}, root)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := queue[0]
		queue = queue[1:]

		c, req := e.dep.Coordinate, e.dep.Requirement
		candidates, err := r.fetcher.Fetch(ctx, c, req)
		if err != nil {
			if isResolutionFailure(err) {
				r.logger.Debug("resolution failure", "coordinate", c.Encode(), "error", err)
				failures = append(failures, err)
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", c.Encode(), err)
		}

		chosen, ok := highestSatisfying(candidates, req)
		if !ok {
			failures = append(failures, &UnsatisfiableError{
				Coordinate:  c,
				Requirement: req,
				Available:   slices.SortedFunc(maps.Keys(candidates), version.Compare),
			})
			continue
		}

		r.logger.Debug("selected version", "coordinate", c.Encode(), "version", chosen.Encode(), "requirement", req.Encode())
		resolved[c] = chosen
		schedule(c, candidates[chosen])
	}

	for _, e := range deferred {
		chosen, ok := resolved[e.dep.Coordinate]
		if !ok || e.dep.Requirement.Satisfies(chosen) {
			continue
		}
		failures = append(failures, &ConflictError{
			Coordinate:  e.dep.Coordinate,
			Requirement: e.dep.Requirement,
			Chosen:      chosen,
			Parent:      e.parent,
		})
	}

	if len(failures) > 0 {
		return nil, &FailedError{Failures: failures}
	}
	return resolved, nil
}

func highestSatisfying(candidates map[version.Version]recipe.DependencyGroup, req version.Requirement) (version.Version, bool) {
	var (
		best  version.Version
		found bool
	)
	for v := range candidates {
		if req.Satisfies(v) && (!found || best.Less(v)) {
			best, found = v, true
		}
	}
	return best, found
}
