// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/invowk/buckle/pkg/recipe"
)

const (
	defaultUserAgent = "buckle/dev"

	// maxDocumentSize bounds registry responses.
	maxDocumentSize = 4 << 20
)

type (
	// ClientOption configures a Remote catalog.
	ClientOption func(*Remote)

	// Remote is a catalog served over HTTP as JSON documents:
	//
	//	GET <base>/index.json                          {"recipes": ["org/name", ...]}
	//	GET <base>/recipes/[<source>/]<org>/<name>.json  Document
	//
	// Recipes are memoized for the lifetime of the Remote, and concurrent
	// requests for the same coordinate share one HTTP request.
	Remote struct {
		base       string
		httpClient *http.Client
		userAgent  string
		logger     *log.Logger

		group singleflight.Group
		mu    sync.RWMutex
		memo  map[recipe.Coordinate]recipe.Recipe
	}

	// RegistryError reports an unexpected registry response.
	RegistryError struct {
		URL        string
		StatusCode int
		Status     string
	}

	index struct {
		Recipes []string `json:"recipes"`
	}
)

// Error implements the error interface.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry request %s: %s", e.URL, e.Status)
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *Remote) {
		r.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(r *Remote) {
		r.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(r *Remote) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRemote returns a catalog for the registry at baseURL.
func NewRemote(baseURL string, opts ...ClientOption) *Remote {
	r := &Remote{
		base:       strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
		logger:     log.New(io.Discard),
		memo:       make(map[recipe.Coordinate]recipe.Recipe),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recipe implements Catalog.
func (r *Remote) Recipe(ctx context.Context, c recipe.Coordinate) (recipe.Recipe, error) {
	r.mu.RLock()
	cached, ok := r.memo[c]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	// The shared lookup outlives any one caller; each caller stops waiting
	// when its own ctx ends.
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(c.Encode(), func() (any, error) {
		rec, err := r.fetchRecipe(detached, c)
		if err != nil {
			return recipe.Recipe{}, err
		}
		r.mu.Lock()
		r.memo[c] = rec
		r.mu.Unlock()
		return rec, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return recipe.Recipe{}, ctx.Err()
	}
	if res.Shared {
		r.logger.Debug("shared registry lookup", "coordinate", c.Encode())
	}
	if res.Err != nil {
		return recipe.Recipe{}, res.Err
	}
	return res.Val.(recipe.Recipe), nil
}

func (r *Remote) recipeURL(c recipe.Coordinate) string {
	segs := []string{"recipes"}
	if c.Source != "" {
		segs = append(segs, string(c.Source))
	}
	segs = append(segs, string(c.Org), string(c.Name)+".json")
	u, _ := url.JoinPath(r.base, segs...)
	return u
}

func (r *Remote) fetchRecipe(ctx context.Context, c recipe.Coordinate) (recipe.Recipe, error) {
	var doc Document
	found, err := r.getJSON(ctx, r.recipeURL(c), &doc)
	if err != nil {
		return recipe.Recipe{}, err
	}
	if !found {
		return recipe.Recipe{}, notFound(c)
	}
	rec, err := doc.Recipe()
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("%s: %w", c.Encode(), err)
	}
	return rec, nil
}

// Coordinates implements Catalog. Index entries that are not valid
// coordinates are skipped.
func (r *Remote) Coordinates(ctx context.Context) ([]recipe.Coordinate, error) {
	u, _ := url.JoinPath(r.base, "index.json")
	var idx index
	found, err := r.getJSON(ctx, u, &idx)
	if err != nil || !found {
		return nil, err
	}

	out := make([]recipe.Coordinate, 0, len(idx.Recipes))
	for _, raw := range idx.Recipes {
		c, err := recipe.ParseCoordinate(raw)
		if err != nil {
			r.logger.Warn("skipping index entry", "entry", raw, "error", err)
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, recipe.Coordinate.Compare)
	return slices.CompactFunc(out, func(a, b recipe.Coordinate) bool { return a == b }), nil
}

// getJSON decodes the document at u into dst. found is false on 404.
func (r *Remote) getJSON(ctx context.Context, u string, dst any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only body

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &RegistryError{URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(dst); err != nil {
		return false, fmt.Errorf("%w: decode %s: %w", ErrInvalidRecipe, u, err)
	}
	return true, nil
}
