// SPDX-License-Identifier: MPL-2.0

package project

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/format"

	"github.com/invowk/buckle/internal/cueutil"
	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

// ManifestFile is the manifest's file name inside a project directory.
const ManifestFile = "buckle.cue"

//go:embed manifest_schema.cue
var manifestSchema []byte

// ErrInvalidManifest is the sentinel error wrapped by ManifestError.
var ErrInvalidManifest = errors.New("invalid manifest")

type (
	// Manifest is the project's declared dependencies.
	Manifest struct {
		Name         string
		License      string
		Dependencies recipe.DependencyGroup
	}

	// ManifestError reports a dependency entry that passed the schema but is
	// not a valid coordinate or requirement.
	ManifestError struct {
		File string
		Key  string
		Err  error
	}

	manifestDoc struct {
		Name         string            `json:"name,omitempty"`
		License      string            `json:"license,omitempty"`
		Dependencies map[string]string `json:"dependencies,omitempty"`
	}
)

// Error implements the error interface.
func (e *ManifestError) Error() string {
	return fmt.Sprintf("%s: dependencies.%q: %v", e.File, e.Key, e.Err)
}

// Unwrap returns both ErrInvalidManifest and the underlying cause.
func (e *ManifestError) Unwrap() []error { return []error{ErrInvalidManifest, e.Err} }

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, path)
}

// ParseManifest validates data against the manifest schema and converts it.
// filename is used in error messages.
func ParseManifest(data []byte, filename string) (Manifest, error) {
	doc, err := cueutil.Decode[manifestDoc](manifestSchema, data, "#Manifest", cueutil.WithFilename(filename))
	if err != nil {
		return Manifest{}, err
	}

	deps := make([]recipe.Dependency, 0, len(doc.Dependencies))
	for _, key := range slices.Sorted(maps.Keys(doc.Dependencies)) {
		c, err := recipe.ParseCoordinate(key)
		if err != nil {
			return Manifest{}, &ManifestError{File: filename, Key: key, Err: err}
		}
		req, ok := version.ParseRequirement(doc.Dependencies[key])
		if !ok {
			return Manifest{}, &ManifestError{
				File: filename,
				Key:  key,
				Err:  fmt.Errorf("%w %q", recipe.ErrInvalidRequirement, doc.Dependencies[key]),
			}
		}
		deps = append(deps, recipe.Dependency{Coordinate: c, Requirement: req})
	}
	return Manifest{Name: doc.Name, License: doc.License, Dependencies: recipe.NewGroup(deps...)}, nil
}

// RenderManifest formats m as CUE source.
func RenderManifest(m Manifest) ([]byte, error) {
	var decls []ast.Decl
	if m.Name != "" {
		decls = append(decls, field(ast.NewIdent("name"), ast.NewString(m.Name)))
	}
	if m.License != "" {
		decls = append(decls, field(ast.NewIdent("license"), ast.NewString(m.License)))
	}
	if !m.Dependencies.IsEmpty() {
		deps := &ast.StructLit{}
		for _, d := range m.Dependencies.Dependencies() {
			deps.Elts = append(deps.Elts, field(ast.NewString(d.Coordinate.Encode()), ast.NewString(d.Requirement.Encode())))
		}
		decls = append(decls, field(ast.NewIdent("dependencies"), deps))
	}

	out, err := format.Node(&ast.File{Decls: decls})
	if err != nil {
		return nil, fmt.Errorf("format manifest: %w", err)
	}
	return out, nil
}

func field(label ast.Label, value ast.Expr) *ast.Field {
	return &ast.Field{Label: label, Value: value}
}

// SaveManifest renders m and writes it to path atomically.
func SaveManifest(path string, m Manifest) error {
	data, err := RenderManifest(m)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}
