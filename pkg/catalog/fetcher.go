// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"cmp"
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/charmbracelet/log"

	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/resolver"
	"github.com/invowk/buckle/pkg/version"
)

const (
	// suggestionThreshold is the largest normalized edit distance at which a
	// known coordinate is offered as a suggestion.
	suggestionThreshold = 0.4

	maxSuggestions = 5
)

type (
	// Fetcher adapts a Catalog to the resolver. It implements
	// resolver.RecipeSource.
	Fetcher struct {
		catalog Catalog
		logger  *log.Logger
	}

	// FetcherOption configures a Fetcher.
	FetcherOption func(*Fetcher)
)

var _ resolver.RecipeSource = (*Fetcher)(nil)

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher returns a resolver source backed by cat.
func NewFetcher(cat Catalog, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{catalog: cat, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements resolver.DependencyFetcher. It returns the versions of c
// that satisfy req with their dependencies.
func (f *Fetcher) Fetch(ctx context.Context, c recipe.Coordinate, req version.Requirement) (map[version.Version]recipe.DependencyGroup, error) {
	r, err := f.recipe(ctx, c)
	if err != nil {
		return nil, err
	}

	out := make(map[version.Version]recipe.DependencyGroup)
	for v, rv := range r.Versions {
		if req.Satisfies(v) {
			out[v] = rv.Dependencies
		}
	}
	if len(out) == 0 {
		return nil, &resolver.UnsatisfiableError{Coordinate: c, Requirement: req, Available: r.SortedVersions()}
	}
	return out, nil
}

// RecipeVersion implements resolver.RecipeLookup.
func (f *Fetcher) RecipeVersion(ctx context.Context, c recipe.Coordinate, v version.Version) (recipe.RecipeVersion, error) {
	r, err := f.recipe(ctx, c)
	if err != nil {
		return recipe.RecipeVersion{}, err
	}
	rv, ok := r.Versions[v]
	if !ok {
		return recipe.RecipeVersion{}, &resolver.UnsatisfiableError{
			Coordinate:  c,
			Requirement: version.NewExact(v),
			Available:   r.SortedVersions(),
		}
	}
	return rv, nil
}

func (f *Fetcher) recipe(ctx context.Context, c recipe.Coordinate) (recipe.Recipe, error) {
	r, err := f.catalog.Recipe(ctx, c)
	if errors.Is(err, ErrRecipeNotFound) {
		known, listErr := f.catalog.Coordinates(ctx)
		if listErr != nil {
			// Only the suggestions are lost.
			f.logger.Warn("cannot list catalog coordinates", "coordinate", c.Encode(), "error", listErr)
			return recipe.Recipe{}, &resolver.NotFoundError{Coordinate: c}
		}
		return recipe.Recipe{}, &resolver.NotFoundError{Coordinate: c, Suggestions: Suggest(c, known)}
	}
	return r, err
}

// Suggest returns the known coordinates closest to c by normalized edit
// distance, most similar first.
func Suggest(c recipe.Coordinate, known []recipe.Coordinate) []recipe.Coordinate {
	type scored struct {
		coord    recipe.Coordinate
		distance float64
	}

	want := strings.ToLower(c.Encode())
	var candidates []scored
	for _, k := range known {
		if k == c {
			continue
		}
		if d := normalizedDistance(want, strings.ToLower(k.Encode())); d <= suggestionThreshold {
			candidates = append(candidates, scored{coord: k, distance: d})
		}
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		return cmp.Or(cmp.Compare(a.distance, b.distance), a.coord.Compare(b.coord))
	})

	out := make([]recipe.Coordinate, 0, min(len(candidates), maxSuggestions))
	for _, s := range candidates[:min(len(candidates), maxSuggestions)] {
		out = append(out, s.coord)
	}
	return out
}

func normalizedDistance(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.Distance(a, b, nil)) / float64(longest)
}
