// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/invowk/buckle/internal/config"
	"github.com/invowk/buckle/internal/gitsource"
	"github.com/invowk/buckle/internal/installer"
	"github.com/invowk/buckle/internal/issue"
	"github.com/invowk/buckle/internal/project"
	"github.com/invowk/buckle/pkg/cache"
	"github.com/invowk/buckle/pkg/catalog"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// GitClient checks out sources and lists repository versions.
	GitClient interface {
		installer.GitCloner
		ListVersions(ctx context.Context, url string) ([]gitsource.TagVersion, error)
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     ConfigProvider
		Git        GitClient
		HTTPClient *http.Client
		Getenv     func(string) string
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and builds what it needs through it.
	App struct {
		Config     ConfigProvider
		Git        GitClient
		httpClient *http.Client
		getenv     func(string) string
		stdout     io.Writer
		stderr     io.Writer

		registry *prometheus.Registry
		metrics  *cache.Metrics
		flights  *cache.Flights
		flags    globalFlags
	}

	// globalFlags are the persistent root flags.
	globalFlags struct {
		configPath string
		projectDir string
		metricsOut string
		verbose    bool
	}

	// session is the per-invocation view of the App: loaded config and the
	// services built from it.
	session struct {
		cfg    *config.Config
		logger *log.Logger
		root   string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Git == nil {
		deps.Git = gitsource.New(gitsource.WithAuth(gitsource.AuthFromEnv(deps.Getenv)))
	}

	reg := prometheus.NewRegistry()
	return &App{
		Config:     deps.Config,
		Git:        deps.Git,
		httpClient: deps.HTTPClient,
		getenv:     deps.Getenv,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
		registry:   reg,
		metrics:    cache.NewMetrics(reg),
		flights:    cache.NewFlights(),
	}
}

// session loads configuration and prepares the logger for one command.
func (a *App) session(ctx context.Context) (*session, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath, Getenv: a.getenv})
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel.String())
	if err != nil {
		level = log.InfoLevel
	}
	if a.flags.verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(a.stderr, log.Options{Prefix: "buckle", Level: level})

	root := a.flags.projectDir
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, root: root}, nil
}

func (s *session) manifestPath() string { return filepath.Join(s.root, project.ManifestFile) }

func (s *session) lockPath() string { return filepath.Join(s.root, project.LockFileName) }

// catalog layers the configured recipe directories in order, then the
// registry. Relative directories are taken from the project root.
func (a *App) catalog(s *session) (catalog.Catalog, error) {
	var layers catalog.Layered
	fs := afero.NewOsFs()
	for _, dir := range s.cfg.Catalog.Dirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.root, dir)
		}
		layers = append(layers, catalog.NewDirectory(fs, dir))
	}
	if s.cfg.Catalog.Registry != "" {
		layers = append(layers, catalog.NewRemote(s.cfg.Catalog.Registry,
			catalog.WithHTTPClient(a.httpClient),
			catalog.WithUserAgent(userAgent()),
			catalog.WithLogger(s.logger.WithPrefix("catalog")),
		))
	}
	if len(layers) == 0 {
		return nil, issue.NewErrorContext().
			WithOperation("open recipe catalog").
			WithSuggestion("Set catalog.dirs or catalog.registry in config.cue").
			WithSuggestion("Or export BUCKLE_CATALOG_REGISTRY=<url>").
			WithIssue(issue.ConfigLoadFailedId).
			BuildError()
	}
	if len(layers) == 1 {
		return layers[0], nil
	}
	return layers, nil
}

func (a *App) cache(s *session) (*cache.Cache, error) {
	root, err := config.CacheRoot(s.cfg, a.getenv)
	if err != nil {
		return nil, err
	}
	return cache.New(root,
		cache.WithDownloader(cache.NewHTTPDownloader(
			cache.WithHTTPClient(a.httpClient),
			cache.WithUserAgent(userAgent()),
		)),
		cache.WithFlights(a.flights),
		cache.WithMetrics(a.metrics),
		cache.WithProgressInterval(s.cfg.ProgressIntervalBytes),
		cache.WithLogger(s.logger.WithPrefix("cache")),
	), nil
}

func (a *App) installer(s *session, frozen bool) (*installer.Installer, error) {
	cat, err := a.catalog(s)
	if err != nil {
		return nil, err
	}
	c, err := a.cache(s)
	if err != nil {
		return nil, err
	}
	return &installer.Installer{
		Catalog:     catalog.NewFetcher(cat, catalog.WithFetcherLogger(s.logger.WithPrefix("catalog"))),
		Cache:       c,
		Git:         a.Git,
		Root:        s.root,
		Concurrency: s.cfg.Concurrency,
		Frozen:      frozen,
		Logger:      s.logger.WithPrefix("installer"),
	}, nil
}

func userAgent() string { return "buckle/" + Version }
