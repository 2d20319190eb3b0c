// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/invowk/buckle/pkg/recipe"
)

// ErrRecipeNotFound is returned when a catalog has no recipe for a coordinate.
var ErrRecipeNotFound = errors.New("recipe not found")

type (
	// Catalog is a read-only source of recipes.
	Catalog interface {
		// Recipe returns the recipe for c, or an error wrapping
		// ErrRecipeNotFound when the catalog does not know it.
		Recipe(ctx context.Context, c recipe.Coordinate) (recipe.Recipe, error)
		// Coordinates lists every coordinate the catalog knows, sorted.
		Coordinates(ctx context.Context) ([]recipe.Coordinate, error)
	}

	// Memory is a fixed, in-memory catalog.
	Memory struct {
		recipes map[recipe.Coordinate]recipe.Recipe
	}
)

// NewMemory returns a catalog holding recipes.
func NewMemory(recipes map[recipe.Coordinate]recipe.Recipe) *Memory {
	return &Memory{recipes: maps.Clone(recipes)}
}

// Recipe implements Catalog.
func (m *Memory) Recipe(_ context.Context, c recipe.Coordinate) (recipe.Recipe, error) {
	r, ok := m.recipes[c]
	if !ok {
		return recipe.Recipe{}, notFound(c)
	}
	return r, nil
}

// Coordinates implements Catalog.
func (m *Memory) Coordinates(context.Context) ([]recipe.Coordinate, error) {
	return slices.SortedFunc(maps.Keys(m.recipes), recipe.Coordinate.Compare), nil
}

func notFound(c recipe.Coordinate) error {
	return fmt.Errorf("%w: %s", ErrRecipeNotFound, c.Encode())
}
