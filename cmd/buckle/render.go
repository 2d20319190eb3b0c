// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/invowk/buckle/internal/issue"
	"github.com/invowk/buckle/pkg/cache"
	"github.com/invowk/buckle/pkg/recipe"
	"github.com/invowk/buckle/pkg/resolver"
	"github.com/invowk/buckle/pkg/version"
)

// markdownStyle is the glamour style for rendered explanations.
var markdownStyle = "dark"

// renderError writes err for a human. Resolution failures become a markdown
// report, actionable errors list their suggestions, and known failure classes
// add their catalog explanation.
func renderError(w io.Writer, err error, verbose bool) {
	if err == nil {
		return
	}

	var failed *resolver.FailedError
	if errors.As(err, &failed) {
		renderMarkdown(w, resolutionReport(failed))
		return
	}

	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(verbose))
		renderIssue(w, ae.Issue)
		return
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+err.Error())
	switch {
	case errors.Is(err, cache.ErrHashMismatch):
		renderIssue(w, issue.HashMismatchId)
	case errors.Is(err, cache.ErrDownloadFailed):
		renderIssue(w, issue.DownloadFailedId)
	}
}

func renderIssue(w io.Writer, id issue.Id) {
	if entry := issue.Get(id); entry != nil {
		if out, err := entry.Render(markdownStyle); err == nil {
			fmt.Fprint(w, out)
		}
	}
}

func renderMarkdown(w io.Writer, md string) {
	out, err := issue.Render(md, markdownStyle)
	if err != nil {
		out = md
	}
	fmt.Fprint(w, out)
}

// resolutionReport explains every collected failure as a markdown list.
func resolutionReport(failed *resolver.FailedError) string {
	var b strings.Builder
	b.WriteString("# Dependency resolution failed\n\n")
	for _, f := range failed.Failures {
		b.WriteString("- " + describeFailure(f) + "\n")
	}
	b.WriteString("\nEdit `buckle.cue` and run `buckle install` again.\n")
	return b.String()
}

func describeFailure(err error) string {
	var (
		nf *resolver.NotFoundError
		us *resolver.UnsatisfiableError
		cf *resolver.ConflictError
	)
	switch {
	case errors.As(err, &nf):
		msg := fmt.Sprintf("**%s** is not in the catalog.", nf.Coordinate)
		if len(nf.Suggestions) > 0 {
			msg += " Did you mean " + joinCode(nf.Suggestions, recipe.Coordinate.Encode) + "?"
		}
		return msg
	case errors.As(err, &us):
		msg := fmt.Sprintf("No version of **%s** satisfies `%s`.", us.Coordinate, us.Requirement.Encode())
		if len(us.Available) > 0 {
			msg += " Available: " + joinCode(us.Available, version.Version.Encode) + "."
		}
		return msg
	case errors.As(err, &cf):
		from := "The project"
		if cf.Parent != (recipe.Coordinate{}) {
			from = "**" + cf.Parent.Encode() + "**"
		}
		return fmt.Sprintf("%s requires `%s@%s`, but `%s` was already selected.",
			from, cf.Coordinate, cf.Requirement.Encode(), cf.Chosen.Encode())
	default:
		return err.Error()
	}
}

func joinCode[T any](items []T, encode func(T) string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = "`" + encode(it) + "`"
	}
	return strings.Join(parts, ", ")
}

// exitCode classifies err for the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, resolver.ErrResolutionFailed):
		return ExitResolution
	case errors.Is(err, cache.ErrHashMismatch):
		return ExitIntegrity
	default:
		return ExitFailure
	}
}

// withExitCode attaches the classified exit status to err.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: exitCode(err), Err: err}
}
