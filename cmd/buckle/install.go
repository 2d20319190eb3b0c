// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/buckle/internal/installer"
	"github.com/invowk/buckle/internal/issue"
	"github.com/invowk/buckle/internal/project"
	"github.com/invowk/buckle/pkg/cache"
	"github.com/invowk/buckle/pkg/recipe"
)

func newInstallCommand(app *App) *cobra.Command {
	var frozen bool
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve, download and unpack every dependency",
		Long: `Resolve the dependencies in buckle.cue, fetch each one into buckle_modules
and write buckle.lock.toml. A lock file that still satisfies the manifest is
reused without consulting the catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			m, err := loadManifest(s)
			if err != nil {
				return err
			}
			in, err := app.installer(s, frozen)
			if err != nil {
				return err
			}

			p := &progress{w: app.stdout, root: s.root, verbose: app.flags.verbose}
			res, err := in.Install(m, s.lockPath()).Run(cmd.Context(), p.step)
			if err != nil {
				return withExitCode(err)
			}
			fmt.Fprintf(app.stdout, "%s %d dependencies in %s (%d already up to date)\n",
				SuccessStyle.Render("Installed"), len(res.Dirs), CmdStyle.Render(installer.ModulesDir), res.UpToDate)
			return nil
		},
	}
	installCmd.Flags().BoolVar(&frozen, "frozen", false, "fail instead of resolving when the lock file is missing or out of date")
	return installCmd
}

func newResolveCommand(app *App) *cobra.Command {
	var update bool
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the versions an install would pin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			m, err := loadManifest(s)
			if err != nil {
				return err
			}
			in, err := app.installer(s, false)
			if err != nil {
				return err
			}

			lockPath := s.lockPath()
			if update {
				lockPath = ""
			}
			locks, reused, err := in.Resolve(cmd.Context(), m, lockPath)
			if err != nil {
				return withExitCode(err)
			}
			printLocks(app.stdout, locks)
			if reused {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(from "+project.LockFileName+")"))
			}
			return nil
		},
	}
	resolveCmd.Flags().BoolVarP(&update, "update", "u", false, "ignore the lock file and resolve against the catalog")
	return resolveCmd
}

func printLocks(w io.Writer, locks recipe.DependencyLocks) {
	for _, c := range locks.Coordinates() {
		rd, _ := locks.Get(c)
		fmt.Fprintf(w, "%s %s  %s\n", CmdStyle.Render(c.Encode()), versionStyle.Render(rd.Version.Encode()), SubtitleStyle.Render(rd.Source.Describe()))
	}
}

// loadManifest reads the project manifest with user-facing errors.
func loadManifest(s *session) (project.Manifest, error) {
	m, err := project.LoadManifest(s.manifestPath())
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, os.ErrNotExist):
		return project.Manifest{}, issue.NewErrorContext().
			WithOperation("load manifest").
			WithResource(s.manifestPath()).
			WithSuggestion("Run 'buckle init' to create one").
			WithSuggestion("Or pass --project-dir to point at the project").
			WithIssue(issue.ManifestNotFoundId).
			Wrap(err).
			BuildError()
	default:
		return project.Manifest{}, issue.NewErrorContext().
			WithOperation("load manifest").
			WithResource(s.manifestPath()).
			WithIssue(issue.ManifestInvalidId).
			Wrap(err).
			BuildError()
	}
}

// progress renders install steps as lines.
type progress struct {
	w       io.Writer
	root    string
	verbose bool
}

func (p *progress) step(st installer.Step) {
	switch st.Phase {
	case installer.PhaseResolving:
		fmt.Fprintln(p.w, SubtitleStyle.Render("Resolving dependencies..."))
	case installer.PhaseResolved:
		if p.verbose {
			fmt.Fprintf(p.w, "  %s %s\n", CmdStyle.Render(st.Coordinate.Encode()), versionStyle.Render(st.Version.Encode()))
		}
	case installer.PhaseUpToDate:
		fmt.Fprintf(p.w, "%s %s %s\n", SubtitleStyle.Render("="), st.Coordinate, SubtitleStyle.Render(st.Version.Encode()+" up to date"))
	case installer.PhaseFetching:
		fmt.Fprintf(p.w, "%s %s %s\n", CmdStyle.Render("↓"), st.Coordinate, versionStyle.Render(st.Version.Encode()))
	case installer.PhaseCloning:
		if p.verbose {
			fmt.Fprintf(p.w, "  %s cloning\n", st.Coordinate)
		}
	case installer.PhaseCache:
		p.cacheEvent(st)
	case installer.PhaseInstalled:
		fmt.Fprintf(p.w, "%s %s → %s\n", SuccessStyle.Render("✓"), st.Coordinate, p.rel(st.Path))
	case installer.PhaseLockWritten:
		fmt.Fprintf(p.w, "%s %s\n", SuccessStyle.Render("Wrote"), p.rel(st.Path))
	}
}

func (p *progress) cacheEvent(st installer.Step) {
	e := st.Cache
	switch e.Kind {
	case cache.EventBusting:
		fmt.Fprintf(p.w, "  %s %s\n", st.Coordinate, WarningStyle.Render("cached copy failed verification, downloading again"))
	case cache.EventAlreadyDownloading:
		fmt.Fprintf(p.w, "  %s %s\n", st.Coordinate, SubtitleStyle.Render("waiting for a download already in progress"))
	case cache.EventProgress:
		if !p.verbose {
			return
		}
		if pct := e.Percent(); pct >= 0 {
			fmt.Fprintf(p.w, "  %s %d%%\n", st.Coordinate, pct)
		} else {
			fmt.Fprintf(p.w, "  %s %d bytes\n", st.Coordinate, e.Bytes)
		}
	case cache.EventChecking, cache.EventDownloaded, cache.EventUnpacking:
		if p.verbose {
			fmt.Fprintf(p.w, "  %s %s\n", st.Coordinate, e.Kind)
		}
	}
}

func (p *progress) rel(path string) string {
	if rel, err := filepath.Rel(p.root, path); err == nil {
		return rel
	}
	return path
}
