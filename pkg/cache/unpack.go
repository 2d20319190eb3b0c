// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/invowk/buckle/pkg/platform"
)

// Unpack extracts the archive at archivePath into targetDir. The format is
// chosen from the file extension (.zip, .tar.gz or .tgz). When subPath is set,
// only entries under it are extracted and the prefix is stripped, so subPath
// becomes the root of targetDir.
func Unpack(afs afero.Fs, archivePath, targetDir, subPath string) error {
	root, err := normalizeSubPath(subPath)
	if err != nil {
		return err
	}
	if err := afs.MkdirAll(targetDir, 0o755); err != nil {
		return ioErr("create directory", targetDir, err)
	}

	switch ext := Extension(archivePath); ext {
	case ".zip":
		return unpackZip(afs, archivePath, targetDir, root)
	case ".tar.gz", ".tgz":
		return unpackTarGz(afs, archivePath, targetDir, root)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedArchive, ext)
	}
}

func normalizeSubPath(subPath string) (string, error) {
	if subPath == "" {
		return "", nil
	}
	cleaned := path.Clean(strings.ReplaceAll(subPath, "\\", "/"))
	cleaned = strings.Trim(cleaned, "/")
	if cleaned == "." || cleaned == "" {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: sub path %q", ErrUnsafePath, subPath)
	}
	return cleaned, nil
}

// relocate maps an archive entry name to its path relative to the extraction
// root. keep is false for entries outside root and for root itself.
func relocate(name, root string) (rel string, keep bool, err error) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	if root != "" {
		if !strings.HasPrefix(cleaned, root+"/") {
			return "", false, nil
		}
		cleaned = strings.TrimPrefix(cleaned, root+"/")
	}
	if cleaned == "." || cleaned == "" {
		return "", false, nil
	}
	host := platform.Current()
	for seg := range strings.SplitSeq(cleaned, "/") {
		if !host.ValidName(seg) {
			return "", false, fmt.Errorf("%w: %q is not a valid file name on %s", ErrUnsafePath, seg, host)
		}
	}
	return cleaned, true, nil
}

func unpackZip(afs afero.Fs, archivePath, targetDir, root string) error {
	f, err := afs.Open(archivePath)
	if err != nil {
		return ioErr("open", archivePath, err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	info, err := f.Stat()
	if err != nil {
		return ioErr("stat", archivePath, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return ioErr("read zip", archivePath, err)
	}

	for _, entry := range zr.File {
		rel, keep, err := relocate(entry.Name, root)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}
		dest := filepath.Join(targetDir, filepath.FromSlash(rel))
		mode := entry.Mode()
		switch {
		case mode.IsDir():
			if err := afs.MkdirAll(dest, 0o755); err != nil {
				return ioErr("create directory", dest, err)
			}
		case mode&fs.ModeSymlink != 0:
			rc, err := entry.Open()
			if err != nil {
				return ioErr("read entry", entry.Name, err)
			}
			target, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return ioErr("read entry", entry.Name, err)
			}
			if err := writeSymlink(afs, rel, string(target), dest); err != nil {
				return err
			}
		default:
			rc, err := entry.Open()
			if err != nil {
				return ioErr("read entry", entry.Name, err)
			}
			err = writeEntry(afs, dest, rc, mode.Perm())
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func unpackTarGz(afs afero.Fs, archivePath, targetDir, root string) error {
	f, err := afs.Open(archivePath)
	if err != nil {
		return ioErr("open", archivePath, err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	gz, err := gzip.NewReader(f)
	if err != nil {
		return ioErr("read gzip", archivePath, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return ioErr("read tar", archivePath, err)
		}

		rel, keep, err := relocate(hdr.Name, root)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}
		dest := filepath.Join(targetDir, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := afs.MkdirAll(dest, 0o755); err != nil {
				return ioErr("create directory", dest, err)
			}
		case tar.TypeReg:
			if err := writeEntry(afs, dest, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(afs, rel, hdr.Linkname, dest); err != nil {
				return err
			}
		default:
			// Hard links, devices and FIFOs have no place in a source tree.
		}
	}
}

func writeEntry(afs afero.Fs, dest string, r io.Reader, perm fs.FileMode) (err error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := afs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return ioErr("create directory", filepath.Dir(dest), err)
	}
	out, err := afs.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return ioErr("create", dest, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = ioErr("close", dest, closeErr)
		}
	}()
	if _, err := io.Copy(out, r); err != nil {
		return ioErr("write", dest, err)
	}
	return nil
}

// writeSymlink creates a link when the filesystem supports it and the target
// stays inside the extraction root. Filesystems without links skip it.
func writeSymlink(afs afero.Fs, rel, linkTarget, dest string) error {
	resolved := path.Join(path.Dir(rel), filepath.ToSlash(linkTarget))
	if path.IsAbs(linkTarget) || resolved == ".." || strings.HasPrefix(resolved, "../") {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, rel, linkTarget)
	}
	linker, ok := afs.(afero.Linker)
	if !ok {
		return nil
	}
	if err := afs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return ioErr("create directory", filepath.Dir(dest), err)
	}
	if err := linker.SymlinkIfPossible(linkTarget, dest); err != nil {
		return ioErr("symlink", dest, err)
	}
	return nil
}
