// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/invowk/buckle/pkg/recipe"
)

const recipeExt = ".yaml"

// Directory is a catalog backed by YAML documents laid out as
// <root>/<org>/<name>.yaml, or <root>/<source>/<org>/<name>.yaml for
// coordinates with a source.
type Directory struct {
	fs   afero.Fs
	root string
}

// NewDirectory returns a catalog reading documents under root on fsys.
func NewDirectory(fsys afero.Fs, root string) *Directory {
	return &Directory{fs: fsys, root: root}
}

// Path returns where the document for c is expected.
func (d *Directory) Path(c recipe.Coordinate) string {
	parts := []string{d.root}
	if c.Source != "" {
		parts = append(parts, string(c.Source))
	}
	parts = append(parts, string(c.Org), string(c.Name)+recipeExt)
	return filepath.Join(parts...)
}

// Recipe implements Catalog.
func (d *Directory) Recipe(_ context.Context, c recipe.Coordinate) (recipe.Recipe, error) {
	path := d.Path(c)
	data, err := afero.ReadFile(d.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return recipe.Recipe{}, notFound(c)
	}
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("read recipe %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return recipe.Recipe{}, fmt.Errorf("%w: %s: %w", ErrInvalidRecipe, path, err)
	}
	r, err := doc.Recipe()
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Coordinates implements Catalog. Files whose path does not form a valid
// coordinate are skipped.
func (d *Directory) Coordinates(ctx context.Context) ([]recipe.Coordinate, error) {
	if ok, err := afero.DirExists(d.fs, d.root); err != nil || !ok {
		return nil, err
	}

	var out []recipe.Coordinate
	err := afero.Walk(d.fs, d.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || filepath.Ext(path) != recipeExt {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		if c, ok := coordinateFromPath(rel); ok {
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list recipes in %s: %w", d.root, err)
	}
	slices.SortFunc(out, recipe.Coordinate.Compare)
	return out, nil
}

func coordinateFromPath(rel string) (recipe.Coordinate, bool) {
	segs := strings.Split(filepath.ToSlash(strings.TrimSuffix(rel, recipeExt)), "/")
	var (
		c   recipe.Coordinate
		err error
	)
	switch len(segs) {
	case 2:
		c, err = recipe.NewCoordinate("", segs[0], segs[1])
	case 3:
		c, err = recipe.NewCoordinate(segs[0], segs[1], segs[2])
	default:
		return recipe.Coordinate{}, false
	}
	return c, err == nil
}
