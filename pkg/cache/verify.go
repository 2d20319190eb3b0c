// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

var entryName = regexp.MustCompile(`^([a-f0-9]{64})(\.[A-Za-z0-9.]+)?$`)

// EntryStatus is the outcome of verifying one cache file.
type EntryStatus struct {
	Path     string
	Expected digest.Digest
	Actual   digest.Digest
	Removed  bool
}

// OK reports whether the file hashed to the digest in its name.
func (s EntryStatus) OK() bool { return s.Expected == s.Actual }

// Verify re-hashes every cache entry against the digest encoded in its file
// name, in file name order. Files that do not look like entries are ignored.
// With prune set, files that fail verification are removed.
func (c *Cache) Verify(ctx context.Context, prune bool) ([]EntryStatus, error) {
	infos, err := afero.ReadDir(c.fs, c.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr("read directory", c.root, err)
	}

	var out []EntryStatus
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m := entryName.FindStringSubmatch(info.Name())
		if info.IsDir() || m == nil {
			continue
		}
		p := filepath.Join(c.root, info.Name())
		actual, err := c.hashFile(p)
		if err != nil {
			return out, err
		}
		st := EntryStatus{Path: p, Expected: digest.NewDigestFromEncoded(digest.SHA256, m[1]), Actual: actual}
		if !st.OK() && prune {
			if err := c.fs.Remove(p); err != nil {
				return out, ioErr("remove", p, err)
			}
			st.Removed = true
			c.metrics.Busts.Inc()
		}
		out = append(out, st)
	}
	return out, nil
}
