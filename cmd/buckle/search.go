// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/buckle/pkg/catalog"
	"github.com/invowk/buckle/pkg/version"
)

func newSearchCommand(app *App) *cobra.Command {
	var limit int
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the recipe catalog",
		Long: `Search the recipe catalog by fuzzy-matching coordinates. Without a query
every known coordinate is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			cat, err := app.catalog(s)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			matches, err := catalog.Search(cmd.Context(), cat, query, limit)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No recipes match "+query))
				return nil
			}

			fetcher := catalog.NewFetcher(cat)
			for _, m := range matches {
				line := CmdStyle.Render(m.Coordinate.Encode())
				// A recipe that fails to load still shows up by name.
				if candidates, err := fetcher.Fetch(cmd.Context(), m.Coordinate, version.Any{}); err == nil {
					if latest, ok := version.Max(slices.Collect(maps.Keys(candidates))...); ok {
						line += " " + versionStyle.Render(latest.Encode())
					}
				}
				fmt.Fprintln(app.stdout, line)
			}
			return nil
		},
	}
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results (0 for no limit)")
	return searchCmd
}

func newVersionsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <git-url>",
		Short: "List the versions tagged in a git repository",
		Long: `List the tags of a git repository that name versions, with the commit
each points to. Recipe authors use this to fill in git sources.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := app.Git.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No version tags found"))
				return nil
			}
			for _, tv := range tags {
				fmt.Fprintf(app.stdout, "%s %s %s\n",
					versionStyle.Render(tv.Version.Encode()), SubtitleStyle.Render(tv.Commit), tv.Tag)
			}
			return nil
		},
	}
}
