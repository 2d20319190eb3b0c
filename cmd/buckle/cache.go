// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCommand(app *App) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the download cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			c, err := app.cache(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, c.Root())
			return nil
		},
	})

	var prune bool
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every cache entry against its name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			c, err := app.cache(s)
			if err != nil {
				return err
			}
			statuses, err := c.Verify(cmd.Context(), prune)
			if err != nil {
				return err
			}

			bad := 0
			for _, st := range statuses {
				if st.OK() {
					continue
				}
				bad++
				action := WarningStyle.Render("corrupt")
				if st.Removed {
					action = ErrorStyle.Render("removed")
				}
				fmt.Fprintf(app.stdout, "%s %s\n", action, st.Path)
			}
			fmt.Fprintf(app.stdout, "%d entries checked, %d bad\n", len(statuses), bad)
			if bad > 0 && !prune {
				return &ExitError{Code: ExitIntegrity, Err: fmt.Errorf("%d corrupt cache entries; rerun with --prune to remove them", bad)}
			}
			return nil
		},
	}
	verifyCmd.Flags().BoolVar(&prune, "prune", false, "remove entries that fail verification")
	cacheCmd.AddCommand(verifyCmd)

	return cacheCmd
}
