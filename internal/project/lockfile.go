// SPDX-License-Identifier: MPL-2.0

package project

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/version"
)

const (
	// LockFileName is the lock file's name inside a project directory.
	LockFileName = "buckle.lock.toml"

	// LockVersion is the lock file format written by this package.
	LockVersion = 1
)

var (
	// ErrUnsupportedLockVersion is returned for lock files written in a
	// format this package does not read.
	ErrUnsupportedLockVersion = errors.New("unsupported lock file version")

	// ErrInvalidLockFile is returned for lock files that do not describe a
	// closed set of pinned dependencies.
	ErrInvalidLockFile = errors.New("invalid lock file")
)

type (
	// LockFile is the on-disk form of recipe.DependencyLocks.
	LockFile struct {
		Version      int               `toml:"version"`
		Dependencies map[string]string `toml:"dependencies,omitempty"`
		Packages     []LockedPackage   `toml:"package"`
	}

	// LockedPackage is one pinned dependency. Exactly one of Git and Archive
	// is set.
	LockedPackage struct {
		Coordinate string                `toml:"coordinate"`
		Version    string                `toml:"version"`
		Target     string                `toml:"target"`
		Requires   []string              `toml:"requires,omitempty"`
		Git        *recipe.GitCommit     `toml:"git,omitempty"`
		Archive    *recipe.RemoteArchive `toml:"archive,omitempty"`
		Resource   *recipe.RemoteFile    `toml:"resource,omitempty"`
	}
)

// NewLockFile captures locks in serializable form. Packages are ordered by
// coordinate.
func NewLockFile(locks recipe.DependencyLocks) *LockFile {
	lf := &LockFile{Version: LockVersion}
	if deps := locks.Root().Dependencies(); len(deps) > 0 {
		lf.Dependencies = make(map[string]string, len(deps))
		for _, d := range deps {
			lf.Dependencies[d.Coordinate.Encode()] = d.Requirement.Encode()
		}
	}
	for _, c := range locks.Coordinates() {
		rd, _ := locks.Get(c)
		pkg := LockedPackage{
			Coordinate: c.Encode(),
			Version:    rd.Version.Encode(),
			Target:     rd.Target,
			Resource:   rd.Resource,
		}
		for _, ref := range rd.Requires {
			pkg.Requires = append(pkg.Requires, ref.Coordinate.Encode())
		}
		switch src := rd.Source.(type) {
		case recipe.GitCommit:
			pkg.Git = &src
		case recipe.RemoteArchive:
			pkg.Archive = &src
		}
		lf.Packages = append(lf.Packages, pkg)
	}
	return lf
}

// LoadLockFile reads the lock file at path. A missing file is reported with
// an error matching os.ErrNotExist.
func LoadLockFile(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	return ParseLockFile(data)
}

// ParseLockFile decodes a lock file.
func ParseLockFile(data []byte) (*LockFile, error) {
	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLockFile, err)
	}
	if lf.Version != LockVersion {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedLockVersion, lf.Version, LockVersion)
	}
	return &lf, nil
}

// Root returns the dependency group the locks were resolved for.
func (lf *LockFile) Root() (recipe.DependencyGroup, error) {
	deps := make([]recipe.Dependency, 0, len(lf.Dependencies))
	for _, key := range slices.Sorted(maps.Keys(lf.Dependencies)) {
		d, err := recipe.ParseDependency(key + "@" + lf.Dependencies[key])
		if err != nil {
			return recipe.DependencyGroup{}, fmt.Errorf("%w: dependencies: %w", ErrInvalidLockFile, err)
		}
		deps = append(deps, d)
	}
	return recipe.NewGroup(deps...), nil
}

// Resolved converts the packages back into pinned dependencies.
func (lf *LockFile) Resolved() (map[recipe.Coordinate]recipe.ResolvedDependency, error) {
	targets := make(map[recipe.Coordinate]string, len(lf.Packages))
	coords := make([]recipe.Coordinate, len(lf.Packages))
	for i, pkg := range lf.Packages {
		c, err := recipe.ParseCoordinate(pkg.Coordinate)
		if err != nil {
			return nil, fmt.Errorf("%w: package %d: %w", ErrInvalidLockFile, i, err)
		}
		if _, dup := targets[c]; dup {
			return nil, fmt.Errorf("%w: %s is locked twice", ErrInvalidLockFile, c)
		}
		targets[c] = pkg.Target
		coords[i] = c
	}

	out := make(map[recipe.Coordinate]recipe.ResolvedDependency, len(lf.Packages))
	for i, pkg := range lf.Packages {
		rd, err := pkg.resolved(targets)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLockFile, pkg.Coordinate, err)
		}
		out[coords[i]] = rd
	}
	return out, nil
}

func (pkg LockedPackage) resolved(targets map[recipe.Coordinate]string) (recipe.ResolvedDependency, error) {
	v, err := version.Parse(pkg.Version)
	if err != nil {
		return recipe.ResolvedDependency{}, err
	}

	var src recipe.Source
	switch {
	case pkg.Git != nil && pkg.Archive == nil:
		src = *pkg.Git
	case pkg.Archive != nil && pkg.Git == nil:
		if err := pkg.Archive.Validate(); err != nil {
			return recipe.ResolvedDependency{}, err
		}
		src = *pkg.Archive
	default:
		return recipe.ResolvedDependency{}, errors.New("exactly one of git and archive must be set")
	}
	if pkg.Resource != nil {
		if err := pkg.Resource.Validate(); err != nil {
			return recipe.ResolvedDependency{}, fmt.Errorf("resource: %w", err)
		}
	}

	refs := make([]recipe.TransitiveRef, 0, len(pkg.Requires))
	for _, raw := range pkg.Requires {
		c, err := recipe.ParseCoordinate(raw)
		if err != nil {
			return recipe.ResolvedDependency{}, fmt.Errorf("requires: %w", err)
		}
		refs = append(refs, recipe.TransitiveRef{Coordinate: c, Target: targets[c]})
	}

	return recipe.ResolvedDependency{
		Version:  v,
		Source:   src,
		Target:   pkg.Target,
		Resource: pkg.Resource,
		Requires: refs,
	}, nil
}

// Locks rebuilds the closed set of locks, checking that every required
// coordinate is present and every root requirement holds.
func (lf *LockFile) Locks() (recipe.DependencyLocks, error) {
	root, err := lf.Root()
	if err != nil {
		return recipe.DependencyLocks{}, err
	}
	return lf.LocksFor(root)
}

// LocksFor is like Locks but checks the pinned versions against root instead
// of the recorded dependencies.
func (lf *LockFile) LocksFor(root recipe.DependencyGroup) (recipe.DependencyLocks, error) {
	resolved, err := lf.Resolved()
	if err != nil {
		return recipe.DependencyLocks{}, err
	}
	return recipe.NewLocks(root, resolved)
}

// Save writes the lock file to path atomically.
func (lf *LockFile) Save(path string) error {
	data, err := toml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("encode lock file: %w", err)
	}
	header := []byte("# Generated by buckle. Do not edit.\n\n")
	return writeAtomic(path, append(header, data...))
}

// writeAtomic writes data to a temporary file beside path and renames it into
// place.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name()) // best effort
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
