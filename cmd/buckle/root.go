// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buckle",
		Short: "A package manager for native dependencies",
		Long: TitleStyle.Render("buckle") + SubtitleStyle.Render(" - A package manager for native dependencies") + `

buckle resolves the dependencies declared in buckle.cue against a recipe
catalog, pins them in buckle.lock.toml and installs them into buckle_modules.
Downloads are verified by SHA256 and kept in a shared cache.

` + SubtitleStyle.Render("Examples:") + `
  buckle add madler/zlib@1.3.*   Declare a dependency
  buckle install                 Resolve, download and unpack
  buckle resolve                 Show the versions that would be pinned
  buckle search zlib             Search the catalog
  buckle cache verify --prune    Re-hash the download cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return app.writeMetrics()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is the platform config dir's buckle/config.cue)")
	flags.StringVarP(&app.flags.projectDir, "project-dir", "C", "", "project directory (default is the working directory)")
	flags.StringVar(&app.flags.metricsOut, "metrics-out", "", "write cache metrics in Prometheus text format to this file on exit")

	rootCmd.AddCommand(
		newInstallCommand(app),
		newResolveCommand(app),
		newInitCommand(app),
		newAddCommand(app),
		newRemoveCommand(app),
		newSearchCommand(app),
		newVersionsCommand(app),
		newCacheCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's status.
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)
	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, app.flags.verbose)
		}),
	); err != nil {
		// PersistentPostRunE only runs after success.
		if metricsErr := app.writeMetrics(); metricsErr != nil {
			renderError(os.Stderr, metricsErr, false)
		}
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
