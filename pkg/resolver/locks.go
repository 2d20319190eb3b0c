// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"fmt"

	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

type (
	// RecipeLookup returns the catalog entry for a pinned version.
	RecipeLookup interface {
		RecipeVersion(ctx context.Context, c recipe.Coordinate, v version.Version) (recipe.RecipeVersion, error)
	}

	// RecipeSource is a catalog view that can both drive resolution and
	// describe the versions it selected.
	RecipeSource interface {
		DependencyFetcher
		RecipeLookup
	}
)

// ResolveLocks resolves root and expands every pinned version into a
// recipe.ResolvedDependency, producing a closed set of locks.
func (r *Resolver) ResolveLocks(ctx context.Context, root recipe.DependencyGroup, lookup RecipeLookup) (recipe.DependencyLocks, error) {
	pinned, err := r.Resolve(ctx, root)
	if err != nil {
		return recipe.DependencyLocks{}, err
	}

	versions := make(map[recipe.Coordinate]recipe.RecipeVersion, len(pinned))
	for c, v := range pinned {
		rv, err := lookup.RecipeVersion(ctx, c, v)
		if err != nil {
			return recipe.DependencyLocks{}, fmt.Errorf("look up %s@%s: %w", c.Encode(), v.Encode(), err)
		}
		versions[c] = rv
	}

	resolved := make(map[recipe.Coordinate]recipe.ResolvedDependency, len(pinned))
	for c, rv := range versions {
		deps := rv.Dependencies.Coordinates()
		refs := make([]recipe.TransitiveRef, 0, len(deps))
		for _, dc := range deps {
			refs = append(refs, recipe.TransitiveRef{Coordinate: dc, Target: versions[dc].Target})
		}
		resolved[c] = recipe.ResolvedDependency{
			Version:  pinned[c],
			Source:   rv.Source,
			Target:   rv.Target,
			Resource: rv.Resource,
			Requires: refs,
		}
	}

	return recipe.NewLocks(root, resolved)
}

// ResolveLocks is shorthand for New(source).ResolveLocks(ctx, root, source).
func ResolveLocks(ctx context.Context, root recipe.DependencyGroup, source RecipeSource) (recipe.DependencyLocks, error) {
	return New(source).ResolveLocks(ctx, root, source)
}
