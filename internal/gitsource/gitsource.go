// SPDX-License-Identifier: MPL-2.0

// Package gitsource clones recipe sources pinned to a commit and lists the
// version tags of a repository.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/invowk/buckle/pkg/version"
)

var (
	// ErrCloneFailed is returned when a repository cannot be cloned or opened.
	ErrCloneFailed = errors.New("git clone failed")

	// ErrCheckoutFailed is returned when a commit cannot be checked out.
	ErrCheckoutFailed = errors.New("git checkout failed")

	// ErrListFailed is returned when remote references cannot be listed.
	ErrListFailed = errors.New("git list failed")
)

type (
	// Option configures a Client.
	Option func(*Client)

	// Client performs git operations for installs and version discovery.
	Client struct {
		auth   transport.AuthMethod
		logger *log.Logger
	}

	// TagVersion is a repository tag that names a version.
	TagVersion struct {
		Tag     string
		Version version.Version
		Commit  string
	}
)

// WithAuth sets the authentication used for every remote operation.
func WithAuth(auth transport.AuthMethod) Option {
	return func(c *Client) { c.auth = auth }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthFromEnv returns HTTP basic auth from GITHUB_TOKEN, GITLAB_TOKEN or
// GIT_TOKEN, checked in that order, or nil when none is set.
func AuthFromEnv(getenv func(string) string) transport.AuthMethod {
	for _, cand := range []struct{ env, user string }{
		{"GITHUB_TOKEN", "x-access-token"},
		{"GITLAB_TOKEN", "gitlab-ci-token"},
		{"GIT_TOKEN", "git"},
	} {
		if token := getenv(cand.env); token != "" {
			return &http.BasicAuth{Username: cand.user, Password: token}
		}
	}
	return nil
}

// CloneAndCheckout materializes url at commit in targetDir and returns the
// full hash that was checked out. An existing repository in targetDir is
// reused. commit may be any revision go-git can resolve, including an
// abbreviated hash or a tag.
func (c *Client) CloneAndCheckout(ctx context.Context, url, commit, targetDir string) (string, error) {
	repo, err := c.open(ctx, url, targetDir)
	if err != nil {
		return "", err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		c.logger.Debug("revision not in clone, fetching all refs", "url", url, "commit", commit)
		fetchErr := repo.FetchContext(ctx, &git.FetchOptions{
			Auth:     c.auth,
			RefSpecs: []config.RefSpec{"+refs/*:refs/*"},
			Tags:     git.AllTags,
			Force:    true,
		})
		if fetchErr != nil && !errors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
			return "", fmt.Errorf("%w: fetch %s: %w", ErrCheckoutFailed, url, fetchErr)
		}
		if hash, err = repo.ResolveRevision(plumbing.Revision(commit)); err != nil {
			return "", fmt.Errorf("%w: resolve %s in %s: %w", ErrCheckoutFailed, commit, url, err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("%w: worktree: %w", ErrCheckoutFailed, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("%w: checkout %s: %w", ErrCheckoutFailed, hash, err)
	}
	return hash.String(), nil
}

func (c *Client) open(ctx context.Context, url, targetDir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(targetDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCloneFailed, targetDir, err)
	}

	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create parent directory: %w", ErrCloneFailed, err)
	}
	c.logger.Debug("cloning", "url", url, "dir", targetDir)
	repo, err = git.PlainCloneContext(ctx, targetDir, false, &git.CloneOptions{
		URL:  url,
		Auth: c.auth,
	})
	if err != nil {
		_ = os.RemoveAll(targetDir) // partial clone is useless
		return nil, fmt.Errorf("%w: %s: %w", ErrCloneFailed, url, err)
	}
	return repo, nil
}

// ListVersions returns the tags of url that name a version, lowest first.
// Tags are parsed leniently, so "v1.2" and "1.2.0" both count. Pre-release
// tags and tags that are not versions are skipped. When several tags name the
// same version the first in tag order is kept.
func (c *Client) ListVersions(ctx context.Context, url string) ([]TagVersion, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: c.auth})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrListFailed, url, err)
	}

	byVersion := make(map[version.Version]TagVersion)
	for _, ref := range refs {
		if !ref.Name().IsTag() {
			continue
		}
		tag := ref.Name().Short()
		v, ok := tagVersion(tag)
		if !ok {
			continue
		}
		if prev, dup := byVersion[v]; dup && prev.Tag < tag {
			continue
		}
		byVersion[v] = TagVersion{Tag: tag, Version: v, Commit: ref.Hash().String()}
	}

	out := make([]TagVersion, 0, len(byVersion))
	for _, tv := range byVersion {
		out = append(out, tv)
	}
	slices.SortFunc(out, func(a, b TagVersion) int { return version.Compare(a.Version, b.Version) })
	return out, nil
}

// tagVersion interprets a tag as a version. Semantic versions are tried
// first; four-part versions fall back to the native parser.
func tagVersion(tag string) (version.Version, bool) {
	if sv, err := semver.NewVersion(tag); err == nil {
		if sv.Prerelease() != "" {
			return version.Version{}, false
		}
		v, err := version.New(int(sv.Major()), int(sv.Minor()), int(sv.Patch()), 0)
		return v, err == nil
	}
	v, err := version.Parse(tag)
	return v, err == nil
}
