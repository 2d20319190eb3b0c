// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

const defaultUserAgent = "buckle/dev"

type (
	// Downloader opens a byte stream for a URL. total is the content length,
	// or -1 when unknown. The caller closes the returned reader.
	Downloader interface {
		Download(ctx context.Context, rawURL string) (body io.ReadCloser, total int64, err error)
	}

	// ClientOption configures an HTTPDownloader.
	ClientOption func(*HTTPDownloader)

	// HTTPDownloader fetches http(s) URLs with net/http and file URLs from the
	// local filesystem.
	HTTPDownloader struct {
		httpClient *http.Client
		userAgent  string
	}
)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(d *HTTPDownloader) {
		d.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(d *HTTPDownloader) {
		d.userAgent = ua
	}
}

// NewHTTPDownloader creates a downloader with the given options.
func NewHTTPDownloader(opts ...ClientOption) *HTTPDownloader {
	d := &HTTPDownloader{
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url %s: %w", redactURL(rawURL), err)
	}
	if u.Scheme == "file" {
		return openLocal(u.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request for %s: %w", redactURL(rawURL), err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", redactURL(rawURL), err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close() // body is not needed for the error
		return nil, 0, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, resp.ContentLength, nil
}

func openLocal(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, ioErr("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, ioErr("stat", path, err)
	}
	return f, info.Size(), nil
}

// redactURL strips query parameters and fragments, which may carry tokens.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
