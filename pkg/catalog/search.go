// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"context"
	"sort"

	"github.com/sahilm/fuzzy"

	"github.com/invowk/buckle/pkg/recipe"
)

// Match is one search hit.
type Match struct {
	Coordinate recipe.Coordinate
	Score      int
}

// Search ranks the catalog's coordinates against query with fuzzy matching
// and returns at most limit hits, best first. A limit of zero or less means no
// limit. An empty query returns every coordinate in order.
func Search(ctx context.Context, cat Catalog, query string, limit int) ([]Match, error) {
	coords, err := cat.Coordinates(ctx)
	if err != nil {
		return nil, err
	}

	var out []Match
	if query == "" {
		out = make([]Match, len(coords))
		for i, c := range coords {
			out[i] = Match{Coordinate: c}
		}
	} else {
		names := make([]string, len(coords))
		for i, c := range coords {
			names[i] = c.Encode()
		}
		matches := fuzzy.Find(query, names)
		sort.Stable(matches)
		out = make([]Match, len(matches))
		for i, m := range matches {
			out[i] = Match{Coordinate: coords[m.Index], Score: m.Score}
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
