// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/invowk/buckle/pkg/recipe"
)

// Path derives the cache location of f under root. It depends only on the
// digest and the URL's file extension, so the same artifact served from
// different hosts shares one entry while different digests never collide.
func Path(root string, f recipe.RemoteFile) string {
	return filepath.Join(root, f.SHA256+Extension(f.URL))
}

// Extension returns the file extension of the URL path, including the dot.
// Compound tarball extensions are kept whole. It returns "" when the path has
// no extension.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := strings.ToLower(path.Base(p))
	for _, compound := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"} {
		if strings.HasSuffix(base, compound) {
			return compound
		}
	}
	ext := path.Ext(base)
	if ext == "." {
		return ""
	}
	return ext
}
