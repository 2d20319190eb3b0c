// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/buckle/internal/issue"
	"github.com/invowk/buckle/internal/project"
	"github.com/invowk/buckle/pkg/catalog"
	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/resolver"
)

func newInitCommand(app *App) *cobra.Command {
	var license string
	initCmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Create buckle.cue in the project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := os.Stat(s.manifestPath()); err == nil {
				return fmt.Errorf("%s already exists", s.manifestPath())
			}
			name := filepath.Base(s.root)
			if len(args) == 1 {
				name = args[0]
			}
			if err := project.SaveManifest(s.manifestPath(), project.Manifest{Name: name, License: license}); err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), CmdStyle.Render(project.ManifestFile))
			return nil
		},
	}
	initCmd.Flags().StringVar(&license, "license", "", "SPDX license identifier of the project")
	return initCmd
}

func newAddCommand(app *App) *cobra.Command {
	var offline bool
	addCmd := &cobra.Command{
		Use:   "add <org/name[@requirement]>...",
		Short: "Add dependencies to buckle.cue",
		Long: `Add dependencies to buckle.cue. Without a requirement any version is
accepted. Unless --offline is set, each coordinate is checked against the
catalog first.`,
		Example: `  buckle add madler/zlib@1.3.*
  buckle add github+facebook/zstd@>=1.5 boost/boost`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			m, err := loadManifest(s)
			if err != nil {
				return err
			}

			deps := make([]recipe.Dependency, 0, len(args))
			for _, arg := range args {
				d, err := recipe.ParseDependency(arg)
				if err != nil {
					return err
				}
				deps = append(deps, d)
			}

			if !offline {
				cat, err := app.catalog(s)
				if err != nil {
					return err
				}
				fetcher := catalog.NewFetcher(cat)
				var failures []error
				for _, d := range deps {
					if _, err := fetcher.Fetch(cmd.Context(), d.Coordinate, d.Requirement); err != nil {
						failures = append(failures, err)
					}
				}
				if len(failures) > 0 {
					return withExitCode(&resolver.FailedError{Failures: failures})
				}
			}

			for _, d := range deps {
				m.Dependencies = m.Dependencies.Add(d.Coordinate, d.Requirement)
				fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("+"), CmdStyle.Render(d.Encode()))
			}
			return project.SaveManifest(s.manifestPath(), m)
		},
	}
	addCmd.Flags().BoolVar(&offline, "offline", false, "do not check the catalog")
	return addCmd
}

func newRemoveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <org/name>...",
		Aliases: []string{"rm"},
		Short:   "Remove dependencies from buckle.cue",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			m, err := loadManifest(s)
			if err != nil {
				return err
			}

			var missing []error
			for _, arg := range args {
				c, err := recipe.ParseCoordinate(arg)
				if err != nil {
					return err
				}
				if _, ok := m.Dependencies.Requirement(c); !ok {
					missing = append(missing, fmt.Errorf("%s is not a dependency", c))
					continue
				}
				m.Dependencies = m.Dependencies.Remove(c)
				fmt.Fprintf(app.stdout, "%s %s\n", ErrorStyle.Render("-"), CmdStyle.Render(c.Encode()))
			}
			if len(missing) > 0 {
				return issue.NewErrorContext().
					WithOperation("remove dependencies").
					WithResource(s.manifestPath()).
					WithSuggestion("Check the coordinates listed in buckle.cue").
					Wrap(errors.Join(missing...)).
					BuildError()
			}
			return project.SaveManifest(s.manifestPath(), m)
		},
	}
}
