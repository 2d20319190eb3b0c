// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"context"
	"errors"
	"slices"

	"github.com/invowk/buckle/pkg/recipe"
)

// Layered consults its catalogs in order. The first one that knows a
// coordinate provides its recipe.
type Layered []Catalog

// Recipe implements Catalog. Errors other than ErrRecipeNotFound stop the
// search.
func (l Layered) Recipe(ctx context.Context, c recipe.Coordinate) (recipe.Recipe, error) {
	for _, cat := range l {
		r, err := cat.Recipe(ctx, c)
		if errors.Is(err, ErrRecipeNotFound) {
			continue
		}
		return r, err
	}
	return recipe.Recipe{}, notFound(c)
}

// Coordinates implements Catalog and returns the union of all layers.
func (l Layered) Coordinates(ctx context.Context) ([]recipe.Coordinate, error) {
	var out []recipe.Coordinate
	for _, cat := range l {
		cs, err := cat.Coordinates(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	slices.SortFunc(out, recipe.Coordinate.Compare)
	return slices.Compact(out), nil
}
