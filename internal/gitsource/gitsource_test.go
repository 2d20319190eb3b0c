// SPDX-License-Identifier: MPL-2.0

package gitsource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/invowk/buckle/internal/testutil"
	"github.com/invowk/buckle/pkg/version"
)

// upstream is a local repository with two commits and a handful of tags.
type upstream struct {
	dir    string
	first  plumbing.Hash
	second plumbing.Hash
}

func newUpstream(t *testing.T) upstream {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	commit := func(content, msg string) plumbing.Hash {
		testutil.MustWriteFile(t, filepath.Join(dir, "zlib.h"), []byte(content))
		if _, err := wt.Add("zlib.h"); err != nil {
			t.Fatal(err)
		}
		h, err := wt.Commit(msg, &git.CommitOptions{Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1700000000, 0)}})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		return h
	}

	u := upstream{dir: dir}
	u.first = commit("v1", "first")
	u.second = commit("v2", "second")
	for tag, h := range map[string]plumbing.Hash{
		"v1.0.0":       u.first,
		"1.0":          u.first,
		"v1.1":         u.second,
		"2.0.0-rc1":    u.second,
		"1.2.3.4":      u.second,
		"release-next": u.second,
	} {
		if _, err := repo.CreateTag(tag, h, nil); err != nil {
			t.Fatalf("tag %s: %v", tag, err)
		}
	}
	return u
}

func TestCloneAndCheckout(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	c := New()
	target := filepath.Join(t.TempDir(), "buckle_modules", "madler", "zlib")

	got, err := c.CloneAndCheckout(t.Context(), u.dir, u.first.String(), target)
	if err != nil {
		t.Fatalf("CloneAndCheckout: %v", err)
	}
	if got != u.first.String() {
		t.Errorf("checked out %s, want %s", got, u.first)
	}
	if content := testutil.MustReadFile(t, filepath.Join(target, "zlib.h")); string(content) != "v1" {
		t.Errorf("zlib.h = %q, want first commit content", content)
	}

	// A second install reuses the clone and moves it.
	got, err = c.CloneAndCheckout(t.Context(), u.dir, u.second.String()[:10], target)
	if err != nil {
		t.Fatalf("re-checkout: %v", err)
	}
	if got != u.second.String() {
		t.Errorf("abbreviated hash resolved to %s, want %s", got, u.second)
	}
	if content := testutil.MustReadFile(t, filepath.Join(target, "zlib.h")); string(content) != "v2" {
		t.Errorf("zlib.h = %q after re-checkout", content)
	}
}

func TestCloneAndCheckout_Errors(t *testing.T) {
	t.Parallel()

	c := New()
	target := filepath.Join(t.TempDir(), "clone")
	_, err := c.CloneAndCheckout(t.Context(), filepath.Join(t.TempDir(), "missing"), "abc", target)
	if !errors.Is(err, ErrCloneFailed) {
		t.Errorf("error = %v, want ErrCloneFailed", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("failed clone left a directory behind")
	}

	u := newUpstream(t)
	_, err = c.CloneAndCheckout(t.Context(), u.dir, "0000000000000000000000000000000000000000", filepath.Join(t.TempDir(), "clone"))
	if !errors.Is(err, ErrCheckoutFailed) {
		t.Errorf("error = %v, want ErrCheckoutFailed", err)
	}
}

func TestListVersions(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	got, err := New().ListVersions(t.Context(), u.dir)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}

	want := []TagVersion{
		{Tag: "1.0", Version: version.MustParse("1.0"), Commit: u.first.String()},
		{Tag: "v1.1", Version: version.MustParse("1.1"), Commit: u.second.String()},
		{Tag: "1.2.3.4", Version: version.MustParse("1.2.3.4"), Commit: u.second.String()},
	}
	if len(got) != len(want) {
		t.Fatalf("ListVersions = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAuthFromEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{"GITLAB_TOKEN": "gl", "GIT_TOKEN": "generic"}
	auth, ok := AuthFromEnv(func(k string) string { return env[k] }).(*http.BasicAuth)
	if !ok || auth.Username != "gitlab-ci-token" || auth.Password != "gl" {
		t.Errorf("auth = %+v", auth)
	}
	if AuthFromEnv(func(string) string { return "" }) != nil {
		t.Error("expected nil auth with no tokens")
	}
}
