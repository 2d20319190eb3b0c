// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/buckle/internal/config"
)

// newConfigCommand creates the `buckle config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage buckle configuration",
		Long: `Manage buckle configuration.

Configuration is stored in:
  - Linux: ~/.config/buckle/config.cue
  - macOS: ~/Library/Application Support/buckle/config.cue
  - Windows: %APPDATA%\buckle\config.cue

BUCKLE_* environment variables override file values, e.g. BUCKLE_CACHE_DIR.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			cacheRoot, err := config.CacheRoot(s.cfg, app.getenv)
			if err != nil {
				return err
			}
			cfg := s.cfg
			dirs := SubtitleStyle.Render("(none)")
			if len(cfg.Catalog.Dirs) > 0 {
				dirs = strings.Join(cfg.Catalog.Dirs, ", ")
			}
			registry := SubtitleStyle.Render("(none)")
			if cfg.Catalog.Registry != "" {
				registry = cfg.Catalog.Registry
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
			fmt.Fprintln(app.stdout)
			for _, kv := range [][2]string{
				{"cache_dir", cacheRoot},
				{"concurrency", fmt.Sprint(cfg.Concurrency)},
				{"progress_interval_bytes", fmt.Sprint(cfg.ProgressIntervalBytes)},
				{"log_level", cfg.LogLevel.String()},
				{"catalog.dirs", dirs},
				{"catalog.registry", registry},
			} {
				fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render(kv[0]), kv[1])
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir(app.getenv)
			if err != nil {
				return err
			}
			path, err := config.CreateDefaultConfig(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(s.cfg))
			return nil
		},
	})

	return cfgCmd
}
