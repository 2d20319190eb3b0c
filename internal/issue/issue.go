// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies an issue in the catalog.
type Id int

const (
	ManifestNotFoundId Id = iota + 1
	ManifestInvalidId
	LockFileInvalidId
	ResolutionFailedId
	HashMismatchId
	DownloadFailedId
	GitFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

type (
	// MarkdownMsg is issue text in markdown.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is a longer, rendered explanation of a class of failure.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// Id returns the issue's identifier.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the issue's markdown text.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns links to further documentation.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the issue for the terminal with the given glamour style
// ("dark", "light", "notty", ...).
func (i *Issue) Render(style string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 {
		var b strings.Builder
		b.WriteString(md)
		b.WriteString("\n\n## See also\n")
		for _, l := range i.docLinks {
			b.WriteString("- <" + string(l) + ">\n")
		}
		md = b.String()
	}
	return Render(md, style)
}

// Render renders arbitrary markdown with the given glamour style.
func Render(md, style string) (string, error) {
	return render(md, style)
}

var (
	render = glamour.Render

	issues = map[Id]*Issue{
		ManifestNotFoundId: {
			id: ManifestNotFoundId,
			mdMsg: `
# No buckle.cue found

buckle looks for the manifest in the project directory (the current
directory unless ` + "`--project-dir`" + ` is given).

## Things you can try
- Add a first dependency, which creates the manifest:
~~~
$ buckle add madler/zlib@>=1.2
~~~
- Point buckle at the project:
~~~
$ buckle --project-dir ./path/to/project install
~~~`,
		},
		ManifestInvalidId: {
			id: ManifestInvalidId,
			mdMsg: `
# buckle.cue is invalid

Every key under ` + "`dependencies`" + ` must be a coordinate such as
` + "`org/name`" + ` or ` + "`source+org/name`" + `, and every value a version requirement.

## Requirement forms
| Form | Meaning |
|------|---------|
| ` + "`*`" + ` | any version |
| ` + "`1.2.3`" + ` or ` + "`=1.2.3`" + ` | exactly 1.2.3 |
| ` + "`[1.0, 1.1]`" + ` | one of the listed versions |
| ` + "`>=1.2`" + ` / ` + "`<=2`" + ` | bounded |
| ` + "`1.0-2.0`" + ` | inclusive range |
| ` + "`1.2.*`" + ` | prefix wildcard |`,
		},
		LockFileInvalidId: {
			id: LockFileInvalidId,
			mdMsg: `
# buckle.lock.toml cannot be used

The lock file is unreadable, was written by a newer buckle, or no longer
describes a closed set of dependencies.

## Things you can try
- Delete it and resolve again:
~~~
$ rm buckle.lock.toml && buckle install
~~~`,
		},
		ResolutionFailedId: {
			id: ResolutionFailedId,
			mdMsg: `
# Dependencies could not be resolved

Each failure below is independent; fixing one does not hide the others.

## Things you can try
- Check coordinates for typos; close matches are suggested when known.
- Loosen requirements that exclude every published version.
- Search the catalog:
~~~
$ buckle search <name>
~~~`,
		},
		HashMismatchId: {
			id: HashMismatchId,
			mdMsg: `
# Downloaded file does not match its recorded hash

The file was discarded and nothing was written to the cache. The
upstream artifact may have been replaced, or the download was tampered
with in transit.

## Things you can try
- Retry; transient proxy corruption is common.
- If it persists, report it to the recipe's maintainers.`,
		},
		DownloadFailedId: {
			id: DownloadFailedId,
			mdMsg: `
# Download failed

## Things you can try
- Check network access to the URL shown above.
- Retry with ` + "`--verbose`" + ` for the full error chain.`,
		},
		GitFailedId: {
			id: GitFailedId,
			mdMsg: `
# Git operation failed

## Things you can try
- For private repositories set ` + "`GITHUB_TOKEN`" + `, ` + "`GITLAB_TOKEN`" + ` or ` + "`GIT_TOKEN`" + `.
- Check that the pinned commit still exists upstream.`,
		},
		ConfigLoadFailedId: {
			id: ConfigLoadFailedId,
			mdMsg: `
# Configuration could not be loaded

## Things you can try
- Check ` + "`config.cue`" + ` in the buckle config directory against the documented keys.
- Override single settings with ` + "`BUCKLE_*`" + ` environment variables.`,
		},
		PermissionDeniedId: {
			id: PermissionDeniedId,
			mdMsg: `
# Permission denied

## Things you can try
- Check ownership of the cache directory (` + "`buckle cache path`" + `).
- Check write access to the project directory.`,
		},
	}
)

// Values returns every catalog issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, id := range slices.Sorted(maps.Keys(issues)) {
		out = append(out, issues[id])
	}
	return out
}

// Get returns the issue with id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
