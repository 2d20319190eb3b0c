// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"

	"github.com/invowk/buckle/pkg/process"
	"github.com/invowk/buckle/pkg/recipe"
)

// DefaultProgressInterval is the number of bytes between progress events.
const DefaultProgressInterval int64 = 1 << 20

type (
	// Option configures a Cache.
	Option func(*Cache)

	// Cache is a flat, content-addressed download cache. Entries are named by
	// digest, verified on every access, and replaced when they fail to verify.
	Cache struct {
		root       string
		fs         afero.Fs
		downloader Downloader
		flights    *Flights
		interval   int64
		metrics    *Metrics
		logger     *log.Logger
	}
)

// WithFs sets the filesystem holding the cache and extraction targets.
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) { c.fs = fs }
}

// WithDownloader sets how artifacts are fetched.
func WithDownloader(d Downloader) Option {
	return func(c *Cache) { c.downloader = d }
}

// WithFlights shares an in-flight table between caches.
func WithFlights(f *Flights) Option {
	return func(c *Cache) { c.flights = f }
}

// WithProgressInterval sets the number of bytes between progress events.
func WithProgressInterval(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.interval = n
		}
	}
}

// WithMetrics sets the counters updated by the cache.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache rooted at root.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:     root,
		fs:       afero.NewOsFs(),
		interval: DefaultProgressInterval,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.downloader == nil {
		c.downloader = NewHTTPDownloader()
	}
	if c.flights == nil {
		c.flights = NewFlights()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// Fs returns the filesystem the cache operates on.
func (c *Cache) Fs() afero.Fs { return c.fs }

// Path returns where f is stored in this cache.
func (c *Cache) Path(f recipe.RemoteFile) string { return Path(c.root, f) }

// DownloadToCache ensures a verified copy of f is in the cache and returns its
// path. A verified entry is used as is. An entry that fails verification is
// removed and downloaded again. Concurrent requests for the same entry share
// one download: requests that arrive while it runs see EventAlreadyDownloading
// followed by the remaining events of that download.
func (c *Cache) DownloadToCache(f recipe.RemoteFile) process.Process[Event, string] {
	return process.New(func(ctx context.Context, emit func(Event)) (string, error) {
		if err := f.Digest().Validate(); err != nil {
			return "", fmt.Errorf("%w: sha256 %q: %w", recipe.ErrInvalidRemoteFile, f.SHA256, err)
		}
		path := c.Path(f)
		fl, leader := c.flights.join(path)
		if !leader {
			c.metrics.Shared.Inc()
			emit(Event{Kind: EventAlreadyDownloading, URL: f.URL, Path: path, Total: -1})
		}
		unsubscribe := fl.subscribe(emit)
		defer unsubscribe()

		if leader {
			// The download outlives any single caller so that attached
			// requests are not failed by the leader's cancellation.
			dlCtx := context.WithoutCancel(ctx)
			go func() {
				c.flights.land(path, fl, c.ensure(dlCtx, f, path, fl.publish))
			}()
		}

		select {
		case <-fl.done:
			if fl.err != nil {
				return "", fl.err
			}
			return path, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

// ensure runs the verify, bust and download steps for one cache entry.
func (c *Cache) ensure(ctx context.Context, f recipe.RemoteFile, path string, publish func(Event)) error {
	expected := f.Digest()
	exists, err := afero.Exists(c.fs, path)
	if err != nil {
		return ioErr("stat", path, err)
	}
	if exists {
		publish(Event{Kind: EventChecking, URL: f.URL, Path: path, Total: -1})
		actual, err := c.hashFile(path)
		if err != nil {
			return err
		}
		if actual == expected {
			c.metrics.Hits.Inc()
			c.logger.Debug("cache hit", "path", path)
			return nil
		}
		c.logger.Warn("cache entry failed verification", "path", path, "expected", expected.Encoded(), "actual", actual.Encoded())
		publish(Event{Kind: EventBusting, URL: f.URL, Path: path, Total: -1})
		c.metrics.Busts.Inc()
		if err := c.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ioErr("remove", path, err)
		}
	}

	c.metrics.Misses.Inc()
	return c.download(ctx, f, path, publish)
}

// download streams f into a temporary file beside path, verifies it and then
// renames it into place. A file that fails verification is never renamed.
func (c *Cache) download(ctx context.Context, f recipe.RemoteFile, path string, publish func(Event)) (err error) {
	if err := c.fs.MkdirAll(c.root, 0o755); err != nil {
		return ioErr("create directory", c.root, err)
	}

	body, total, err := c.downloader.Download(ctx, f.URL)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }() // read-only stream

	tmp, err := afero.TempFile(c.fs, c.root, ".download-*")
	if err != nil {
		return ioErr("create temp file", c.root, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = c.fs.Remove(tmpName) // best effort; the name never matches a digest
		}
	}()

	digester := digest.SHA256.Digester()
	progress := &progressWriter{
		interval: c.interval,
		emit: func(n int64) {
			publish(Event{Kind: EventProgress, URL: f.URL, Path: path, Bytes: n, Total: total})
		},
	}
	written, err := io.Copy(io.MultiWriter(tmp, digester.Hash(), progress), body)
	if err != nil {
		return ioErr("download", redactURL(f.URL), err)
	}
	c.metrics.Bytes.Add(float64(written))

	expected := f.Digest()
	if actual := digester.Digest(); actual != expected {
		return &HashMismatchError{URL: f.URL, Expected: expected, Actual: actual}
	}

	if err := tmp.Close(); err != nil {
		return ioErr("close", tmpName, err)
	}
	if err := c.fs.Rename(tmpName, path); err != nil {
		return ioErr("rename", path, err)
	}
	committed = true

	publish(Event{Kind: EventDownloaded, URL: f.URL, Path: path, Bytes: written, Total: total})
	c.logger.Debug("downloaded", "url", redactURL(f.URL), "path", path, "bytes", written)
	return nil
}

func (c *Cache) hashFile(path string) (digest.Digest, error) {
	file, err := c.fs.Open(path)
	if err != nil {
		return "", ioErr("open", path, err)
	}
	defer func() { _ = file.Close() }() // read-only handle

	d, err := digest.SHA256.FromReader(file)
	if err != nil {
		return "", ioErr("hash", path, err)
	}
	return d, nil
}

// DownloadUsingCache ensures f is cached and copies it to target.
func (c *Cache) DownloadUsingCache(f recipe.RemoteFile, target string) process.Process[Event, string] {
	return process.Chain(c.DownloadToCache(f), func(cached string) process.Process[Event, string] {
		return process.New(func(_ context.Context, emit func(Event)) (string, error) {
			emit(Event{Kind: EventUnpacking, URL: f.URL, Path: target, Total: -1})
			if err := copyFile(c.fs, cached, target); err != nil {
				return "", err
			}
			return target, nil
		})
	})
}

// DownloadArchiveUsingCache ensures the archive is cached and extracts it into
// targetDir, re-rooted at the archive's sub path when one is set.
func (c *Cache) DownloadArchiveUsingCache(a recipe.RemoteArchive, targetDir string) process.Process[Event, string] {
	return process.Chain(c.DownloadToCache(a.RemoteFile), func(cached string) process.Process[Event, string] {
		return process.New(func(_ context.Context, emit func(Event)) (string, error) {
			emit(Event{Kind: EventUnpacking, URL: a.URL, Path: targetDir, Total: -1})
			if err := Unpack(c.fs, cached, targetDir, a.SubPath); err != nil {
				return "", err
			}
			return targetDir, nil
		})
	})
}

func copyFile(fs afero.Fs, src, dst string) (err error) {
	in, err := fs.Open(src)
	if err != nil {
		return ioErr("open", src, err)
	}
	defer func() { _ = in.Close() }() // read-only handle

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ioErr("create directory", filepath.Dir(dst), err)
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return ioErr("create", dst, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = ioErr("close", dst, closeErr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return ioErr("copy", dst, err)
	}
	return nil
}

// progressWriter reports the running byte count each time another interval
// bytes have passed through it.
type progressWriter struct {
	interval int64
	written  int64
	reported int64
	emit     func(int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.written-p.reported >= p.interval {
		p.reported = p.written
		p.emit(p.written)
	}
	return len(b), nil
}
