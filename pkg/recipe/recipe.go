// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/invowk/buckle/pkg/version"
)

// ErrInvalidRemoteFile is returned when a content address is malformed.
var ErrInvalidRemoteFile = errors.New("invalid remote file")

type (
	// RemoteFile is a content address: the URL an artifact is fetched from and
	// the SHA256 hex digest it must hash to. Two RemoteFiles with the same URL
	// and different digests are distinct artifacts.
	RemoteFile struct {
		URL    string `json:"url" yaml:"url" toml:"url"`
		SHA256 string `json:"sha256" yaml:"sha256" toml:"sha256"`
	}

	// RemoteArchive is a RemoteFile unpacked on install. SubPath, when set,
	// selects a directory inside the archive to use as the root.
	RemoteArchive struct {
		RemoteFile `yaml:",inline"`
		SubPath    string `json:"sub_path,omitempty" yaml:"sub_path,omitempty" toml:"sub_path,omitempty"`
	}

	// Source is where a recipe version's files come from. Implementations are
	// GitCommit and RemoteArchive.
	Source interface {
		// Describe renders the source for display.
		Describe() string

		sourceMarker()
	}

	// GitCommit is a source pinned to a commit of a git repository.
	GitCommit struct {
		URL    string `json:"url" yaml:"url" toml:"url"`
		Commit string `json:"commit" yaml:"commit" toml:"commit"`
	}

	// RecipeVersion is a single published version of a recipe.
	RecipeVersion struct {
		Source       Source
		Target       string
		Dependencies DependencyGroup
		Resource     *RemoteFile
	}

	// Recipe is catalog data describing every version of one package.
	// Recipes are never mutated once constructed.
	Recipe struct {
		Name     string
		URL      string
		Versions map[version.Version]RecipeVersion
	}
)

func (GitCommit) sourceMarker()     {}
func (RemoteArchive) sourceMarker() {}

// Describe implements Source.
func (g GitCommit) Describe() string { return g.URL + "#" + g.Commit }

// Describe implements Source.
func (a RemoteArchive) Describe() string {
	if a.SubPath == "" {
		return a.URL
	}
	return a.URL + "!/" + a.SubPath
}

// Digest returns the expected digest in algorithm:hex form.
func (f RemoteFile) Digest() digest.Digest {
	return digest.NewDigestFromEncoded(digest.SHA256, f.SHA256)
}

// Validate checks the URL and digest shape.
func (f RemoteFile) Validate() error {
	u, err := url.Parse(f.URL)
	if err != nil {
		return fmt.Errorf("%w: url %q: %w", ErrInvalidRemoteFile, f.URL, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: url %q has no host", ErrInvalidRemoteFile, f.URL)
		}
	case "file":
	default:
		return fmt.Errorf("%w: url %q must use http, https or file", ErrInvalidRemoteFile, f.URL)
	}
	if f.SHA256 != strings.ToLower(f.SHA256) {
		return fmt.Errorf("%w: sha256 must be lowercase hex", ErrInvalidRemoteFile)
	}
	if err := f.Digest().Validate(); err != nil {
		return fmt.Errorf("%w: sha256 %q: %w", ErrInvalidRemoteFile, f.SHA256, err)
	}
	return nil
}

// Validate checks the underlying file and that SubPath stays relative.
func (a RemoteArchive) Validate() error {
	if err := a.RemoteFile.Validate(); err != nil {
		return err
	}
	if strings.HasPrefix(a.SubPath, "/") || slices.Contains(strings.Split(a.SubPath, "/"), "..") {
		return fmt.Errorf("%w: sub path %q must be relative and stay inside the archive", ErrInvalidRemoteFile, a.SubPath)
	}
	return nil
}

// SortedVersions returns the recipe's versions in ascending order.
func (r Recipe) SortedVersions() []version.Version {
	vs := slices.Collect(maps.Keys(r.Versions))
	version.Sort(vs)
	return vs
}

// Latest returns the highest version satisfying req.
func (r Recipe) Latest(req version.Requirement) (version.Version, RecipeVersion, bool) {
	var (
		best  version.Version
		found bool
	)
	for v := range r.Versions {
		if req.Satisfies(v) && (!found || best.Less(v)) {
			best, found = v, true
		}
	}
	if !found {
		return version.Version{}, RecipeVersion{}, false
	}
	return best, r.Versions[best], true
}
