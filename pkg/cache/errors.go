// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrHashMismatch is the sentinel error wrapped by HashMismatchError.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrUnsafePath is returned when an archive entry would be written
	// outside the extraction directory.
	ErrUnsafePath = errors.New("unsafe archive path")

	// ErrUnsupportedArchive is returned for archive formats that cannot be
	// unpacked.
	ErrUnsupportedArchive = errors.New("unsupported archive format")

	// ErrDownloadFailed is the sentinel error wrapped by DownloadError.
	ErrDownloadFailed = errors.New("download failed")
)

type (
	// HashMismatchError reports a downloaded artifact whose digest differs
	// from the expected one. Nothing is left in the cache when it is returned.
	HashMismatchError struct {
		URL      string
		Expected digest.Digest
		Actual   digest.Digest
	}

	// IOError wraps a filesystem failure with the operation and path.
	IOError struct {
		Op   string
		Path string
		Err  error
	}

	// DownloadError reports a transfer the server refused.
	DownloadError struct {
		URL        string
		StatusCode int
		Status     string
	}
)

// Error implements the error interface.
func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: expected %s, got %s", e.URL, e.Expected.Encoded(), e.Actual.Encoded())
}

// Unwrap returns ErrHashMismatch for errors.Is() compatibility.
func (e *HashMismatchError) Unwrap() error { return ErrHashMismatch }

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *IOError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %s", redactURL(e.URL), e.Status)
}

// Unwrap returns ErrDownloadFailed for errors.Is() compatibility.
func (e *DownloadError) Unwrap() error { return ErrDownloadFailed }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
