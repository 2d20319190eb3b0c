// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"

	"github.com/invowk/buckle/internal/testutil"
	"github.com/invowk/buckle/pkg/recipe"
)

const cacheRoot = "/cache"

func newMemCache(opts ...Option) (*Cache, afero.Fs) {
	fs := afero.NewMemMapFs()
	return New(cacheRoot, append([]Option{WithFs(fs)}, opts...)...), fs
}

func remoteFile(url string, body []byte) recipe.RemoteFile {
	return recipe.RemoteFile{URL: url, SHA256: testutil.SHA256Hex(body)}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestPath_Deterministic(t *testing.T) {
	t.Parallel()

	a := recipe.RemoteFile{URL: "https://example.com/zlib-1.3.zip", SHA256: strings.Repeat("a", 64)}
	b := recipe.RemoteFile{URL: "https://mirror.example.org/x/zlib-1.3.zip?token=1", SHA256: strings.Repeat("a", 64)}
	c := recipe.RemoteFile{URL: a.URL, SHA256: strings.Repeat("b", 64)}

	if Path(cacheRoot, a) != Path(cacheRoot, a) {
		t.Error("Path is not stable for equal inputs")
	}
	if Path(cacheRoot, a) != Path(cacheRoot, b) {
		t.Errorf("same digest and extension should share an entry: %s vs %s", Path(cacheRoot, a), Path(cacheRoot, b))
	}
	if Path(cacheRoot, a) == Path(cacheRoot, c) {
		t.Error("different digests must not share an entry")
	}
	if want := filepath.Join(cacheRoot, strings.Repeat("a", 64)+".zip"); Path(cacheRoot, a) != want {
		t.Errorf("Path = %s, want %s", Path(cacheRoot, a), want)
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://example.com/a.zip":                 ".zip",
		"https://example.com/a.ZIP":                 ".zip",
		"https://example.com/a-1.0.tar.gz":          ".tar.gz",
		"https://example.com/a.tgz?x=y.zip":         ".tgz",
		"https://example.com/download":              "",
		"https://example.com/dir.d/file":            "",
		"file:///tmp/artifacts/lib.h":               ".h",
		"https://example.com/archive/v1.2.3.tar.xz": ".tar.xz",
	}
	for url, want := range tests {
		if got := Extension(url); got != want {
			t.Errorf("Extension(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestDownloadToCache_MissThenHit(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	body := []byte("int zlib_version(void);")
	f := remoteFile(srv.Put("zlib.h", body), body)

	metrics := NewMetrics(nil)
	c, fs := newMemCache(WithMetrics(metrics))

	path, err := c.DownloadToCache(f).Result(t.Context())
	if err != nil {
		t.Fatalf("first download: %v", err)
	}
	if path != c.Path(f) {
		t.Errorf("path = %s, want %s", path, c.Path(f))
	}
	if got := readFile(t, fs, path); got != string(body) {
		t.Errorf("cached content = %q", got)
	}

	states, err := c.DownloadToCache(f).States(t.Context())
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if !slices.Equal(kinds(states), []EventKind{EventChecking}) {
		t.Errorf("cache hit events = %v, want [checking]", kinds(states))
	}
	if srv.Hits("zlib.h") != 1 {
		t.Errorf("server hit %d times, want 1", srv.Hits("zlib.h"))
	}
	if promtest.ToFloat64(metrics.Hits) != 1 || promtest.ToFloat64(metrics.Misses) != 1 {
		t.Errorf("hits=%v misses=%v, want 1 and 1", promtest.ToFloat64(metrics.Hits), promtest.ToFloat64(metrics.Misses))
	}
	if promtest.ToFloat64(metrics.Bytes) != float64(len(body)) {
		t.Errorf("bytes = %v, want %d", promtest.ToFloat64(metrics.Bytes), len(body))
	}
}

func TestDownloadToCache_BustsCorruptEntry(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	body := []byte("the real artifact")
	f := remoteFile(srv.Put("lib.zip", body), body)

	metrics := NewMetrics(nil)
	c, fs := newMemCache(WithMetrics(metrics))
	if err := afero.WriteFile(fs, c.Path(f), []byte("truncated garbage"), 0o644); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	states, err := c.DownloadToCache(f).States(t.Context())
	if err != nil {
		t.Fatalf("DownloadToCache: %v", err)
	}
	got := kinds(states)
	if len(got) < 3 || got[0] != EventChecking || got[1] != EventBusting || got[len(got)-1] != EventDownloaded {
		t.Errorf("events = %v, want checking, busting, ..., downloaded", got)
	}
	if content := readFile(t, fs, c.Path(f)); content != string(body) {
		t.Errorf("cache entry = %q after busting", content)
	}
	if testutil.SHA256Hex([]byte(readFile(t, fs, c.Path(f)))) != f.SHA256 {
		t.Error("healed entry does not hash to the expected digest")
	}
	if promtest.ToFloat64(metrics.Busts) != 1 {
		t.Errorf("busts = %v, want 1", promtest.ToFloat64(metrics.Busts))
	}
}

func TestDownloadToCache_HashMismatchLeavesNothing(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	url := srv.Put("lib.zip", []byte("tampered"))
	f := recipe.RemoteFile{URL: url, SHA256: testutil.SHA256Hex([]byte("original"))}

	c, fs := newMemCache()
	_, err := c.DownloadToCache(f).Result(t.Context())

	var mismatch *HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want *HashMismatchError", err)
	}
	if !errors.Is(err, ErrHashMismatch) {
		t.Error("HashMismatchError should wrap ErrHashMismatch")
	}
	if mismatch.Expected.Encoded() != f.SHA256 || mismatch.Actual.Encoded() != testutil.SHA256Hex([]byte("tampered")) {
		t.Errorf("mismatch = %+v", mismatch)
	}

	entries, err := afero.ReadDir(fs, cacheRoot)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("cache should be empty after a failed verification, found %v", names)
	}
}

func TestDownloadToCache_RejectsMalformedDigest(t *testing.T) {
	t.Parallel()

	c, _ := newMemCache()
	_, err := c.DownloadToCache(recipe.RemoteFile{URL: "https://example.com/x.zip", SHA256: "../../etc/passwd"}).Result(t.Context())
	if !errors.Is(err, recipe.ErrInvalidRemoteFile) {
		t.Errorf("error = %v, want ErrInvalidRemoteFile", err)
	}
}

func TestDownloadToCache_DeduplicatesConcurrentRequests(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	body := []byte(strings.Repeat("payload ", 512))
	f := remoteFile(srv.Put("big.tar.gz", body), body)
	release := srv.Hold()
	defer release()

	metrics := NewMetrics(nil)
	c, _ := newMemCache(WithMetrics(metrics))

	var wg sync.WaitGroup
	results := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, results[0] = c.DownloadToCache(f).Result(context.Background())
	}()
	srv.WaitForRequest(t, "big.tar.gz")

	attached := make(chan struct{})
	var followerEvents []Event
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, results[1] = c.DownloadToCache(f).Run(context.Background(), func(ev Event) {
			followerEvents = append(followerEvents, ev)
			if ev.Kind == EventAlreadyDownloading {
				close(attached)
			}
		})
	}()

	<-attached
	release()
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if srv.Hits("big.tar.gz") != 1 {
		t.Errorf("server hit %d times, want exactly 1", srv.Hits("big.tar.gz"))
	}
	if len(followerEvents) == 0 || followerEvents[0].Kind != EventAlreadyDownloading {
		t.Errorf("follower events = %v, want already-downloading first", kinds(followerEvents))
	}
	if last := followerEvents[len(followerEvents)-1]; last.Kind != EventDownloaded {
		t.Errorf("follower should observe the shared download finish, last event = %v", last.Kind)
	}
	if promtest.ToFloat64(metrics.Shared) != 1 {
		t.Errorf("shared = %v, want 1", promtest.ToFloat64(metrics.Shared))
	}
	if c.flights.Len() != 0 {
		t.Errorf("in-flight table holds %d entries after completion", c.flights.Len())
	}
}

func TestDownloadToCache_CancelledFollowerDoesNotStopDownload(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	body := []byte("shared body")
	f := remoteFile(srv.Put("shared.zip", body), body)
	release := srv.Hold()
	defer release()

	c, fs := newMemCache()

	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.DownloadToCache(f).Result(context.Background())
		leaderDone <- err
	}()
	srv.WaitForRequest(t, "shared.zip")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := c.DownloadToCache(f).Result(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled follower error = %v, want context.Canceled", err)
	}

	release()
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader failed: %v", err)
	}
	if readFile(t, fs, c.Path(f)) != string(body) {
		t.Error("download did not complete after follower cancelled")
	}
}

func TestDownloadToCache_ProgressCadence(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	body := []byte(strings.Repeat("x", 4096))
	f := remoteFile(srv.Put("blob.zip", body), body)

	c, _ := newMemCache(WithProgressInterval(256))
	states, err := c.DownloadToCache(f).States(t.Context())
	if err != nil {
		t.Fatalf("DownloadToCache: %v", err)
	}

	var last int64
	progress := 0
	for _, ev := range states {
		if ev.Kind != EventProgress {
			continue
		}
		progress++
		if ev.Bytes-last < 256 {
			t.Errorf("progress events closer than the interval: %d then %d", last, ev.Bytes)
		}
		last = ev.Bytes
	}
	if progress == 0 {
		t.Error("expected at least one progress event")
	}
	final := states[len(states)-1]
	if final.Kind != EventDownloaded || final.Bytes != int64(len(body)) {
		t.Errorf("final event = %+v", final)
	}
}

func TestDownloadUsingCache_CopiesToTarget(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	body := []byte("resource contents")
	f := remoteFile(srv.Put("res.txt", body), body)

	c, fs := newMemCache()
	target := "/project/buckle_modules/acme/res.txt"
	got, err := c.DownloadUsingCache(f, target).Result(t.Context())
	if err != nil {
		t.Fatalf("DownloadUsingCache: %v", err)
	}
	if got != target || readFile(t, fs, target) != string(body) {
		t.Errorf("target %s content = %q", got, readFile(t, fs, target))
	}
}

func TestDownloadArchiveUsingCache_SubPath(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	archive := testutil.ZipBytes(t, map[string]string{
		"zlib-1.3/":              "",
		"zlib-1.3/zlib.h":        "header",
		"zlib-1.3/src/deflate.c": "source",
		"README":                 "outside",
		"zlib-1.3-extra/x":       "sibling with shared prefix",
	})
	a := recipe.RemoteArchive{RemoteFile: remoteFile(srv.Put("zlib.zip", archive), archive), SubPath: "zlib-1.3/"}

	c, fs := newMemCache()
	states, err := c.DownloadArchiveUsingCache(a, "/out").States(t.Context())
	if err != nil {
		t.Fatalf("DownloadArchiveUsingCache: %v", err)
	}
	if states[len(states)-1].Kind != EventUnpacking {
		t.Errorf("last event = %v, want unpacking", states[len(states)-1].Kind)
	}

	if got := readFile(t, fs, "/out/zlib.h"); got != "header" {
		t.Errorf("zlib.h = %q", got)
	}
	if got := readFile(t, fs, "/out/src/deflate.c"); got != "source" {
		t.Errorf("src/deflate.c = %q", got)
	}
	for _, dropped := range []string{"/out/README", "/out/zlib-1.3", "/out/x", "/out/zlib-1.3-extra"} {
		if ok, _ := afero.Exists(fs, dropped); ok {
			t.Errorf("%s should not be extracted", dropped)
		}
	}
}

func TestUnpack_TarGz(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	data := testutil.TarGzBytes(t, map[string]string{"pkg/a.txt": "A", "pkg/b/c.txt": "C"})
	if err := afero.WriteFile(fs, "/cache/x.tar.gz", data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Unpack(fs, "/cache/x.tar.gz", "/dst", ""); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if readFile(t, fs, "/dst/pkg/b/c.txt") != "C" {
		t.Error("nested file missing")
	}
}

func TestUnpack_RejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	data := testutil.ZipBytes(t, map[string]string{"../evil.sh": "rm -rf"})
	if err := afero.WriteFile(fs, "/cache/x.zip", data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Unpack(fs, "/cache/x.zip", "/dst", ""); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("error = %v, want ErrUnsafePath", err)
	}
	if err := Unpack(fs, "/cache/x.zip", "/dst", "../up"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("sub path error = %v, want ErrUnsafePath", err)
	}
	if err := Unpack(fs, "/cache/x.rar", "/dst", ""); !errors.Is(err, ErrUnsupportedArchive) {
		t.Errorf("error = %v, want ErrUnsupportedArchive", err)
	}
}

func TestDownload_ServerErrorIsTyped(t *testing.T) {
	t.Parallel()

	srv := testutil.NewArtifactServer(t)
	f := recipe.RemoteFile{URL: srv.URL + "/missing.zip?token=secret", SHA256: strings.Repeat("0", 64)}

	c, _ := newMemCache()
	_, err := c.DownloadToCache(f).Result(t.Context())

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) || dlErr.StatusCode != 404 {
		t.Fatalf("error = %v, want 404 DownloadError", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error message leaks query string: %v", err)
	}
}

func TestDownload_FileURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := []byte("local artifact")
	src := filepath.Join(dir, "local.h")
	testutil.MustWriteFile(t, src, body)

	c := New(filepath.Join(dir, "cache"))
	f := recipe.RemoteFile{URL: "file://" + filepath.ToSlash(src), SHA256: testutil.SHA256Hex(body)}
	path, err := c.DownloadToCache(f).Result(t.Context())
	if err != nil {
		t.Fatalf("DownloadToCache: %v", err)
	}
	if string(testutil.MustReadFile(t, path)) != string(body) {
		t.Error("file URL content not cached")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	c, fs := newMemCache()
	good := []byte("good")
	goodPath := Path(cacheRoot, recipe.RemoteFile{URL: "https://x/good.zip", SHA256: testutil.SHA256Hex(good)})
	badPath := Path(cacheRoot, recipe.RemoteFile{URL: "https://x/bad.zip", SHA256: testutil.SHA256Hex([]byte("expected"))})
	for path, data := range map[string][]byte{goodPath: good, badPath: []byte("rotted"), "/cache/notes.txt": []byte("ignored")} {
		if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	statuses, err := c.Verify(t.Context(), true)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	for _, st := range statuses {
		switch st.Path {
		case goodPath:
			if !st.OK() || st.Removed {
				t.Errorf("good entry status = %+v", st)
			}
		case badPath:
			if st.OK() || !st.Removed {
				t.Errorf("bad entry status = %+v", st)
			}
		default:
			t.Errorf("unexpected status for %s", st.Path)
		}
	}
	if ok, _ := afero.Exists(fs, badPath); ok {
		t.Error("pruned entry still exists")
	}
}
