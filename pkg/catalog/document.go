// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

// ErrInvalidRecipe is returned when a recipe document does not describe a
// usable recipe.
var ErrInvalidRecipe = errors.New("invalid recipe document")

type (
	// Document is the serialized form of a recipe shared by the directory
	// (YAML) and remote (JSON) catalogs.
	Document struct {
		Name     string                     `json:"name" yaml:"name"`
		URL      string                     `json:"url,omitempty" yaml:"url,omitempty"`
		Versions map[string]VersionDocument `json:"versions" yaml:"versions"`
	}

	// VersionDocument is one published version inside a Document. Dependencies
	// maps encoded coordinates to requirement strings.
	VersionDocument struct {
		Source       SourceDocument     `json:"source" yaml:"source"`
		Target       string             `json:"target" yaml:"target"`
		Dependencies map[string]string  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
		Resource     *recipe.RemoteFile `json:"resource,omitempty" yaml:"resource,omitempty"`
	}

	// SourceDocument holds exactly one of its fields.
	SourceDocument struct {
		Git     *recipe.GitCommit     `json:"git,omitempty" yaml:"git,omitempty"`
		Archive *recipe.RemoteArchive `json:"archive,omitempty" yaml:"archive,omitempty"`
	}
)

// Recipe converts the document, validating every version, source and
// dependency it names.
func (d Document) Recipe() (recipe.Recipe, error) {
	if d.Name == "" {
		return recipe.Recipe{}, fmt.Errorf("%w: missing name", ErrInvalidRecipe)
	}
	if len(d.Versions) == 0 {
		return recipe.Recipe{}, fmt.Errorf("%w: %s has no versions", ErrInvalidRecipe, d.Name)
	}

	out := recipe.Recipe{Name: d.Name, URL: d.URL, Versions: make(map[version.Version]recipe.RecipeVersion, len(d.Versions))}
	for _, raw := range slices.Sorted(maps.Keys(d.Versions)) {
		v, err := version.Parse(raw)
		if err != nil {
			return recipe.Recipe{}, fmt.Errorf("%w: %s: %w", ErrInvalidRecipe, d.Name, err)
		}
		if _, dup := out.Versions[v]; dup {
			return recipe.Recipe{}, fmt.Errorf("%w: %s: version %s listed twice", ErrInvalidRecipe, d.Name, v)
		}
		rv, err := d.Versions[raw].recipeVersion()
		if err != nil {
			return recipe.Recipe{}, fmt.Errorf("%w: %s@%s: %w", ErrInvalidRecipe, d.Name, raw, err)
		}
		out.Versions[v] = rv
	}
	return out, nil
}

func (vd VersionDocument) recipeVersion() (recipe.RecipeVersion, error) {
	src, err := vd.Source.source()
	if err != nil {
		return recipe.RecipeVersion{}, err
	}
	if vd.Target == "" {
		return recipe.RecipeVersion{}, errors.New("missing target")
	}
	if vd.Resource != nil {
		if err := vd.Resource.Validate(); err != nil {
			return recipe.RecipeVersion{}, fmt.Errorf("resource: %w", err)
		}
	}

	deps := make([]recipe.Dependency, 0, len(vd.Dependencies))
	for _, coord := range slices.Sorted(maps.Keys(vd.Dependencies)) {
		dep, err := recipe.ParseDependency(coord + "@" + vd.Dependencies[coord])
		if err != nil {
			return recipe.RecipeVersion{}, fmt.Errorf("dependency %s: %w", coord, err)
		}
		deps = append(deps, dep)
	}

	return recipe.RecipeVersion{
		Source:       src,
		Target:       vd.Target,
		Dependencies: recipe.NewGroup(deps...),
		Resource:     vd.Resource,
	}, nil
}

func (sd SourceDocument) source() (recipe.Source, error) {
	switch {
	case sd.Git != nil && sd.Archive != nil:
		return nil, errors.New("source must be either git or archive, not both")
	case sd.Git != nil:
		if sd.Git.URL == "" || sd.Git.Commit == "" {
			return nil, errors.New("git source needs url and commit")
		}
		return *sd.Git, nil
	case sd.Archive != nil:
		if err := sd.Archive.Validate(); err != nil {
			return nil, err
		}
		return *sd.Archive, nil
	default:
		return nil, errors.New("missing source")
	}
}

// NewDocument renders r in serialized form.
func NewDocument(r recipe.Recipe) Document {
	d := Document{Name: r.Name, URL: r.URL, Versions: make(map[string]VersionDocument, len(r.Versions))}
	for v, rv := range r.Versions {
		vd := VersionDocument{Target: rv.Target, Resource: rv.Resource}
		switch src := rv.Source.(type) {
		case recipe.GitCommit:
			vd.Source.Git = &src
		case recipe.RemoteArchive:
			vd.Source.Archive = &src
		}
		if !rv.Dependencies.IsEmpty() {
			vd.Dependencies = make(map[string]string, rv.Dependencies.Len())
			for _, dep := range rv.Dependencies.Dependencies() {
				vd.Dependencies[dep.Coordinate.Encode()] = dep.Requirement.Encode()
			}
		}
		d.Versions[v.Encode()] = vd
	}
	return d
}
