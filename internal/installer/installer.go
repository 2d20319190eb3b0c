// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/buckle/internal/project"
	"github.com/invowk/buckle/pkg/cache"
	"github.com/invowk/buckle/pkg/process"
	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/resolver"
)

const (
	// ModulesDir is the directory under the project root that receives
	// installed dependencies.
	ModulesDir = "buckle_modules"

	// markerFile records what an install directory holds.
	markerFile = ".buckle-installed"
)

var (
	// ErrLockOutOfDate is returned in frozen mode when the lock file is
	// missing or does not satisfy the manifest.
	ErrLockOutOfDate = errors.New("lock file is out of date")

	// ErrNoSource is returned for a pinned dependency without a source.
	ErrNoSource = errors.New("dependency has no source")

	// ErrNoCache is returned when a download is needed but no Cache is set.
	ErrNoCache = errors.New("no download cache configured")
)

type (
	// GitCloner checks out a commit of a repository into a directory.
	GitCloner interface {
		CloneAndCheckout(ctx context.Context, url, commit, targetDir string) (string, error)
	}

	// Installer resolves a manifest, fetches every pinned dependency into the
	// project and records the result in the lock file.
	Installer struct {
		// Catalog drives resolution and describes pinned versions.
		Catalog resolver.RecipeSource
		// Cache stores downloaded archives and resources. Its filesystem also
		// receives unpacked archives.
		Cache *cache.Cache
		// Git checks out git sources. Checkouts always go to the OS filesystem.
		Git GitCloner
		// Root is the project directory.
		Root string
		// Concurrency bounds parallel fetches; zero means unbounded.
		Concurrency int
		// Frozen refuses to resolve and requires an up-to-date lock file.
		Frozen bool
		// Logger defaults to a discarding logger.
		Logger *log.Logger
	}

	// Result summarizes a finished install.
	Result struct {
		Locks recipe.DependencyLocks
		// Dirs maps each coordinate to its install directory.
		Dirs map[recipe.Coordinate]string
		// ReusedLock is true when resolution was skipped.
		ReusedLock bool
		// UpToDate counts dependencies that were already installed.
		UpToDate int
	}

	// resolution is the outcome of the first pipeline stage.
	resolution struct {
		locks  recipe.DependencyLocks
		reused bool
	}

	// fetched is the outcome of installing one dependency.
	fetched struct {
		dir      string
		upToDate bool
	}
)

func (in *Installer) logger() *log.Logger {
	if in.Logger == nil {
		return log.New(io.Discard)
	}
	return in.Logger
}

func (in *Installer) fs() afero.Fs {
	if in.Cache == nil {
		return afero.NewOsFs()
	}
	return in.Cache.Fs()
}

// Dir returns where c is installed under root.
func Dir(root string, c recipe.Coordinate) string {
	parts := []string{root, ModulesDir}
	if c.Source != "" {
		parts = append(parts, string(c.Source))
	}
	return filepath.Join(append(parts, string(c.Org), string(c.Name))...)
}

// Resolve returns locks for manifest, reusing the lock file at lockPath when
// it pins every manifest dependency with a satisfying version and was made
// for the same set of coordinates. An empty lockPath always resolves.
func (in *Installer) Resolve(ctx context.Context, m project.Manifest, lockPath string) (recipe.DependencyLocks, bool, error) {
	if locks, ok := in.reusableLocks(m, lockPath); ok {
		return locks, true, nil
	}
	if in.Frozen {
		return recipe.DependencyLocks{}, false, fmt.Errorf("%w: %s", ErrLockOutOfDate, lockPath)
	}
	if in.Catalog == nil {
		return recipe.DependencyLocks{}, false, errors.New("no recipe catalog configured")
	}
	locks, err := resolver.New(in.Catalog, resolver.WithLogger(in.logger())).ResolveLocks(ctx, m.Dependencies, in.Catalog)
	if err != nil {
		return recipe.DependencyLocks{}, false, err
	}
	return locks, false, nil
}

func (in *Installer) reusableLocks(m project.Manifest, lockPath string) (recipe.DependencyLocks, bool) {
	if lockPath == "" {
		return recipe.DependencyLocks{}, false
	}
	lf, err := project.LoadLockFile(lockPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			in.logger().Warn("ignoring lock file", "path", lockPath, "err", err)
		}
		return recipe.DependencyLocks{}, false
	}
	recorded, err := lf.Root()
	if err != nil || !slices.Equal(recorded.Coordinates(), m.Dependencies.Coordinates()) {
		in.logger().Debug("lock file was made for different dependencies", "path", lockPath)
		return recipe.DependencyLocks{}, false
	}
	locks, err := lf.LocksFor(m.Dependencies)
	if err != nil {
		in.logger().Debug("lock file does not satisfy the manifest", "path", lockPath, "err", err)
		return recipe.DependencyLocks{}, false
	}
	return locks, true
}

// Install resolves m, fetches every dependency into Root/buckle_modules and
// writes the lock file to lockPath.
func (in *Installer) Install(m project.Manifest, lockPath string) process.Process[Step, Result] {
	resolve := process.New(func(ctx context.Context, emit func(Step)) (resolution, error) {
		emit(Step{Phase: PhaseResolving})
		locks, reused, err := in.Resolve(ctx, m, lockPath)
		if err != nil {
			return resolution{}, err
		}
		for _, c := range locks.Coordinates() {
			rd, _ := locks.Get(c)
			emit(Step{Phase: PhaseResolved, Coordinate: c, Version: rd.Version})
		}
		in.logger().Info("resolved dependencies", "count", locks.Len(), "reused_lock", reused)
		return resolution{locks: locks, reused: reused}, nil
	})

	return process.Chain(resolve, func(res resolution) process.Process[Step, Result] {
		coords := res.locks.Coordinates()
		fetches := make([]process.Process[Step, fetched], len(coords))
		for i, c := range coords {
			rd, _ := res.locks.Get(c)
			fetches[i] = in.fetch(c, rd)
		}
		all := process.All(in.Concurrency, fetches...)
		return process.Chain(all, func(done []fetched) process.Process[Step, Result] {
			return process.New(func(_ context.Context, emit func(Step)) (Result, error) {
				out := Result{Locks: res.locks, Dirs: make(map[recipe.Coordinate]string, len(done)), ReusedLock: res.reused}
				for i, f := range done {
					out.Dirs[coords[i]] = f.dir
					if f.upToDate {
						out.UpToDate++
					}
				}
				if !res.reused {
					if err := project.NewLockFile(res.locks).Save(lockPath); err != nil {
						return Result{}, err
					}
					emit(Step{Phase: PhaseLockWritten, Path: lockPath})
				}
				return out, nil
			})
		})
	})
}

// fetch installs one dependency unless its directory already holds it.
func (in *Installer) fetch(c recipe.Coordinate, rd recipe.ResolvedDependency) process.Process[Step, fetched] {
	if rd.Source == nil {
		return process.Fail[Step, fetched](fmt.Errorf("install %s: %w", c, ErrNoSource))
	}
	dir := Dir(in.Root, c)
	stamp := marker(c, rd)

	prepare := process.New(func(_ context.Context, emit func(Step)) (bool, error) {
		if current, err := afero.ReadFile(in.fs(), filepath.Join(dir, markerFile)); err == nil && string(current) == stamp {
			emit(Step{Phase: PhaseUpToDate, Coordinate: c, Version: rd.Version, Path: dir})
			return true, nil
		}
		if err := in.fs().RemoveAll(dir); err != nil {
			return false, fmt.Errorf("clear %s: %w", dir, err)
		}
		emit(Step{Phase: PhaseFetching, Coordinate: c, Version: rd.Version, Path: dir})
		return false, nil
	})

	return process.Chain(prepare, func(upToDate bool) process.Process[Step, fetched] {
		if upToDate {
			return process.Just[Step](fetched{dir: dir, upToDate: true})
		}
		steps := process.Concat(in.source(c, rd.Source, dir), in.resource(c, rd.Resource, dir))
		return process.Chain(steps, func(string) process.Process[Step, fetched] {
			return process.New(func(_ context.Context, emit func(Step)) (fetched, error) {
				if err := afero.WriteFile(in.fs(), filepath.Join(dir, markerFile), []byte(stamp), 0o644); err != nil {
					return fetched{}, fmt.Errorf("install %s: %w", c, err)
				}
				emit(Step{Phase: PhaseInstalled, Coordinate: c, Version: rd.Version, Path: dir})
				in.logger().Debug("installed", "coordinate", c, "version", rd.Version, "dir", dir)
				return fetched{dir: dir}, nil
			})
		})
	})
}

// source fetches the dependency's files into dir.
func (in *Installer) source(c recipe.Coordinate, src recipe.Source, dir string) process.Process[Step, string] {
	switch s := src.(type) {
	case recipe.GitCommit:
		return process.New(func(ctx context.Context, emit func(Step)) (string, error) {
			if in.Git == nil {
				return "", fmt.Errorf("install %s: no git client configured", c)
			}
			emit(Step{Phase: PhaseCloning, Coordinate: c, Path: dir})
			if _, err := in.Git.CloneAndCheckout(ctx, s.URL, s.Commit, dir); err != nil {
				return "", fmt.Errorf("install %s: %w", c, err)
			}
			return dir, nil
		})
	case recipe.RemoteArchive:
		if in.Cache == nil {
			return process.Fail[Step, string](fmt.Errorf("install %s: %w", c, ErrNoCache))
		}
		return in.cached(c, in.Cache.DownloadArchiveUsingCache(s, dir))
	default:
		return process.Fail[Step, string](fmt.Errorf("install %s: unsupported source %T", c, src))
	}
}

// resource copies the auxiliary file, named after its URL, into dir.
func (in *Installer) resource(c recipe.Coordinate, f *recipe.RemoteFile, dir string) process.Process[Step, string] {
	if f == nil {
		return process.Just[Step](dir)
	}
	if in.Cache == nil {
		return process.Fail[Step, string](fmt.Errorf("install %s: %w", c, ErrNoCache))
	}
	return in.cached(c, in.Cache.DownloadUsingCache(*f, filepath.Join(dir, resourceName(f.URL))))
}

// cached attributes cache events to c and wraps failures with it.
func (in *Installer) cached(c recipe.Coordinate, p process.Process[cache.Event, string]) process.Process[Step, string] {
	steps := process.MapStates(p, func(e cache.Event) Step {
		return Step{Phase: PhaseCache, Coordinate: c, Cache: e, Path: e.Path}
	})
	return process.New(func(ctx context.Context, emit func(Step)) (string, error) {
		out, err := steps.Run(ctx, emit)
		if err != nil {
			return "", fmt.Errorf("install %s: %w", c, err)
		}
		return out, nil
	})
}

func resourceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "resource"
	}
	switch name := path.Base(u.Path); name {
	case "", ".", "/":
		return "resource"
	default:
		return name
	}
}

func marker(c recipe.Coordinate, rd recipe.ResolvedDependency) string {
	s := fmt.Sprintf("%s@%s\n%s\n", c.Encode(), rd.Version.Encode(), rd.Source.Describe())
	if rd.Resource != nil {
		s += rd.Resource.URL + "#" + rd.Resource.SHA256 + "\n"
	}
	return s
}
