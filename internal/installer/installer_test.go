// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/invowk/buckle/internal/project"
	"github.com/invowk/buckle/internal/testutil"
	"github.com/invowk/buckle/pkg/cache"
	"github.com/invowk/buckle/pkg/catalog"
	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/resolver"
	"github.com/invowk/buckle/pkg/version"
)

// fakeGit records checkouts and writes a single file into the target.
type fakeGit struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (g *fakeGit) CloneAndCheckout(_ context.Context, url, commit, targetDir string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, url+"#"+commit)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}
	return commit, os.WriteFile(filepath.Join(targetDir, "CMakeLists.txt"), []byte(commit), 0o644)
}

func (g *fakeGit) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fixture struct {
	root     string
	lockPath string
	server   *testutil.ArtifactServer
	git      *fakeGit
	recipes  map[recipe.Coordinate]recipe.Recipe
}

func dep(s string) recipe.Dependency {
	d, err := recipe.ParseDependency(s)
	if err != nil {
		panic(err)
	}
	return d
}

func manifest(deps ...string) project.Manifest {
	ds := make([]recipe.Dependency, len(deps))
	for i, s := range deps {
		ds[i] = dep(s)
	}
	return project.Manifest{Name: "demo", Dependencies: recipe.NewGroup(ds...)}
}

// newFixture publishes zlib 1.3 as a zip archive with a BUCK resource. It
// depends on org/cmake-rules, which comes from git.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := testutil.NewArtifactServer(t)
	zipBody := testutil.ZipBytes(t, map[string]string{
		"zlib-1.3/zlib.h":    "#define ZLIB_VERSION \"1.3\"",
		"zlib-1.3/README":    "zlib",
		"docs/unrelated.txt": "dropped",
	})
	buck := []byte("cxx_library(name = 'zlib')\n")
	zipURL := srv.Put("zlib-1.3.zip", zipBody)
	buckURL := srv.Put("BUCK", buck)

	root := t.TempDir()
	f := &fixture{
		root:     root,
		lockPath: filepath.Join(root, project.LockFileName),
		server:   srv,
		git:      &fakeGit{},
		recipes: map[recipe.Coordinate]recipe.Recipe{
			recipe.MustCoordinate("madler/zlib"): {
				Name: "zlib",
				Versions: map[version.Version]recipe.RecipeVersion{
					version.MustParse("1.3"): {
						Source: recipe.RemoteArchive{
							RemoteFile: recipe.RemoteFile{URL: zipURL, SHA256: testutil.SHA256Hex(zipBody)},
							SubPath:    "zlib-1.3",
						},
						Target:       "zlib",
						Dependencies: recipe.NewGroup(dep("org/cmake-rules@>=1.0")),
						Resource:     &recipe.RemoteFile{URL: buckURL, SHA256: testutil.SHA256Hex(buck)},
					},
				},
			},
			recipe.MustCoordinate("org/cmake-rules"): {
				Name: "cmake-rules",
				Versions: map[version.Version]recipe.RecipeVersion{
					version.MustParse("1.0"): {Source: recipe.GitCommit{URL: "https://example.com/rules.git", Commit: "c1"}},
					version.MustParse("1.1"): {Source: recipe.GitCommit{URL: "https://example.com/rules.git", Commit: "c2"}},
				},
			},
		},
	}
	return f
}

func (f *fixture) installer(t *testing.T) *Installer {
	t.Helper()
	return &Installer{
		Catalog:     catalog.NewFetcher(catalog.NewMemory(f.recipes)),
		Cache:       cache.New(filepath.Join(f.root, ".cache")),
		Git:         f.git,
		Root:        f.root,
		Concurrency: 2,
	}
}

func TestInstall_FetchesEverySource(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var steps []Step
	res, err := f.installer(t).Install(manifest("madler/zlib@1.*"), f.lockPath).Run(t.Context(), func(s Step) {
		steps = append(steps, s)
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	zlibDir := filepath.Join(f.root, ModulesDir, "madler", "zlib")
	if got := string(testutil.MustReadFile(t, filepath.Join(zlibDir, "zlib.h"))); got != `#define ZLIB_VERSION "1.3"` {
		t.Errorf("zlib.h = %q", got)
	}
	if _, err := os.Stat(filepath.Join(zlibDir, "docs")); !errors.Is(err, os.ErrNotExist) {
		t.Error("entries outside the sub path were extracted")
	}
	if _, err := os.Stat(filepath.Join(zlibDir, "BUCK")); err != nil {
		t.Errorf("resource not installed: %v", err)
	}
	rulesDir := filepath.Join(f.root, ModulesDir, "org", "cmake-rules")
	if got := string(testutil.MustReadFile(t, filepath.Join(rulesDir, "CMakeLists.txt"))); got != "c2" {
		t.Errorf("git checkout = %q, want highest version's commit c2", got)
	}

	if res.ReusedLock || res.UpToDate != 0 || len(res.Dirs) != 2 || res.Dirs[recipe.MustCoordinate("madler/zlib")] != zlibDir {
		t.Errorf("result = %+v", res)
	}

	lf, err := project.LoadLockFile(f.lockPath)
	if err != nil {
		t.Fatalf("lock file: %v", err)
	}
	locks, err := lf.Locks()
	if err != nil {
		t.Fatalf("lock file locks: %v", err)
	}
	if got := locks.Versions()[recipe.MustCoordinate("org/cmake-rules")]; got != version.MustParse("1.1") {
		t.Errorf("locked cmake-rules = %s", got)
	}

	seen := map[Phase]int{}
	for _, s := range steps {
		seen[s.Phase]++
		if s.Phase == PhaseCache && s.Coordinate != recipe.MustCoordinate("madler/zlib") {
			t.Errorf("cache event attributed to %s", s.Coordinate)
		}
	}
	if steps[0].Phase != PhaseResolving || steps[len(steps)-1].Phase != PhaseLockWritten {
		t.Errorf("steps start with %s and end with %s", steps[0].Phase, steps[len(steps)-1].Phase)
	}
	if seen[PhaseResolved] != 2 || seen[PhaseInstalled] != 2 || seen[PhaseCloning] != 1 || seen[PhaseCache] == 0 {
		t.Errorf("phase counts = %v", seen)
	}
}

func TestInstall_SecondRunReusesLockAndDirs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := manifest("madler/zlib")
	if _, err := f.installer(t).Install(m, f.lockPath).Result(t.Context()); err != nil {
		t.Fatalf("first install: %v", err)
	}

	// A catalog that knows nothing proves the lock file is used.
	in := f.installer(t)
	in.Catalog = catalog.NewFetcher(catalog.NewMemory(nil))
	res, err := in.Install(m, f.lockPath).Result(t.Context())
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !res.ReusedLock || res.UpToDate != 2 {
		t.Errorf("result = %+v, want reused lock and 2 up to date", res)
	}
	if f.git.count() != 1 || f.server.Hits("zlib-1.3.zip") != 1 {
		t.Errorf("refetched: git=%d zip=%d", f.git.count(), f.server.Hits("zlib-1.3.zip"))
	}
}

func TestInstall_ChangedManifestResolvesAgain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.installer(t).Install(manifest("org/cmake-rules@1.0"), f.lockPath).Result(t.Context()); err != nil {
		t.Fatalf("first install: %v", err)
	}
	res, err := f.installer(t).Install(manifest("org/cmake-rules@1.1"), f.lockPath).Result(t.Context())
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if res.ReusedLock {
		t.Error("a lock that no longer satisfies the manifest was reused")
	}
	rulesDir := filepath.Join(f.root, ModulesDir, "org", "cmake-rules")
	if got := string(testutil.MustReadFile(t, filepath.Join(rulesDir, "CMakeLists.txt"))); got != "c2" {
		t.Errorf("checkout = %q, want c2", got)
	}
}

func TestInstall_Frozen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	in := f.installer(t)
	in.Frozen = true
	_, err := in.Install(manifest("madler/zlib"), f.lockPath).Result(t.Context())
	if !errors.Is(err, ErrLockOutOfDate) {
		t.Fatalf("err = %v, want ErrLockOutOfDate", err)
	}
	if f.server.Hits("zlib-1.3.zip") != 0 {
		t.Error("frozen install downloaded before failing")
	}
}

func TestInstall_ResolutionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.installer(t).Install(manifest("madler/zlibb"), f.lockPath).Result(t.Context())
	if !errors.Is(err, resolver.ErrResolutionFailed) {
		t.Fatalf("err = %v, want a resolution failure", err)
	}
	if _, statErr := os.Stat(f.lockPath); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("lock file written after a failed resolution")
	}
}

func TestInstall_FetchFailureNamesCoordinate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.git.err = errors.New("remote hung up")
	_, err := f.installer(t).Install(manifest("org/cmake-rules"), f.lockPath).Result(t.Context())
	if err == nil || !errors.Is(err, f.git.err) {
		t.Fatalf("err = %v", err)
	}
	if got := err.Error(); got != "install org/cmake-rules: remote hung up" {
		t.Errorf("err = %q", got)
	}
}

func TestInstall_HashMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := recipe.MustCoordinate("madler/zlib")
	r := f.recipes[c]
	rv := r.Versions[version.MustParse("1.3")]
	archive := rv.Source.(recipe.RemoteArchive)
	archive.SHA256 = testutil.SHA256Hex([]byte("something else"))
	rv.Source = archive
	r.Versions = map[version.Version]recipe.RecipeVersion{version.MustParse("1.3"): rv}
	f.recipes[c] = r

	_, err := f.installer(t).Install(manifest("madler/zlib"), f.lockPath).Result(t.Context())
	if !errors.Is(err, cache.ErrHashMismatch) {
		t.Fatalf("err = %v, want ErrHashMismatch", err)
	}
}

func TestInstall_MissingSourceOrCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := recipe.MustCoordinate("org/cmake-rules")
	r := f.recipes[c]
	r.Versions = map[version.Version]recipe.RecipeVersion{version.MustParse("1.0"): {}}
	f.recipes[c] = r

	_, err := f.installer(t).Install(manifest("org/cmake-rules"), f.lockPath).Result(t.Context())
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("sourceless dependency err = %v, want ErrNoSource", err)
	}

	g := newFixture(t)
	in := g.installer(t)
	in.Cache = nil
	_, err = in.Install(manifest("madler/zlib"), g.lockPath).Result(t.Context())
	if !errors.Is(err, ErrNoCache) {
		t.Errorf("archive without cache err = %v, want ErrNoCache", err)
	}
	if g.server.Hits("zlib-1.3.zip") != 0 {
		t.Error("downloaded without a cache")
	}
}

func TestDir(t *testing.T) {
	t.Parallel()

	if got, want := Dir("/p", recipe.MustCoordinate("github+madler/zlib")), filepath.Join("/p", ModulesDir, "github", "madler", "zlib"); got != want {
		t.Errorf("Dir = %s, want %s", got, want)
	}
}

func TestResourceName(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"https://example.com/recipes/BUCK?sig=abc": "BUCK",
		"https://example.com/":                     "resource",
		"https://example.com/a/zlib.bzl#frag":      "zlib.bzl",
	} {
		if got := resourceName(in); got != want {
			t.Errorf("resourceName(%q) = %q, want %q", in, got, want)
		}
	}
}
