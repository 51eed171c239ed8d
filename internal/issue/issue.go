// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

const (
	ManifestNotFoundId Id = iota + 1
	ManifestParseErrorId
	ConfigLoadFailedId
	VersionPolicyViolatedId
	AmbiguousVersionsId
	MissingChildId
	UnreadableArchiveId
	ChecksumCacheCorruptId
	InvalidProcessorGroupId
	CacheWriteFailedId
)

type (
	// Id identifies a catalogued issue.
	Id int

	// MarkdownMsg is guidance text rendered to the terminal.
	MarkdownMsg string

	// HttpLink is a documentation link.
	HttpLink string

	// Issue is a catalogued failure with Markdown guidance.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// Id returns the issue's identifier.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the raw guidance.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns documentation links for the issue.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the guidance through glamour with the given style
// ("dark", "light", "notty", or a style file path).
func (i *Issue) Render(style string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, style)
}

var (
	render = glamour.Render

	issues = map[Id]*Issue{
		ManifestNotFoundId: {
			id: ManifestNotFoundId,
			mdMsg: `
# No project manifest found!

depforge reads the resolved dependency graph of your build from a project manifest.

## Search order
1. The path given with ` + "`--project`" + `
2. ` + "`depforge.project.cue`" + ` in the current directory
3. ` + "`depforge.project.yaml`" + ` / ` + "`depforge.project.yml`" + `

## Things you can try
- Export the manifest from your build and re-run ` + "`depforge resolve`" + `
- Pass the manifest explicitly: ` + "`depforge resolve --project path/to/manifest.cue`",
		},
		ManifestParseErrorId: {
			id: ManifestParseErrorId,
			mdMsg: `
# Project manifest is invalid!

The manifest did not match the expected schema. The error above names the field path.

## Things you can try
- Check that every artifact has ` + "`group`, `name`, `version` and `file`" + `
- Check that child coordinates use ` + "`group:name:version`",
		},
		ConfigLoadFailedId: {
			id: ConfigLoadFailedId,
			mdMsg: `
# Failed to load configuration!

## Things you can try
- Run ` + "`depforge config show`" + ` to see the effective configuration
- Remove unknown keys from ` + "`depforge.cue`",
		},
		VersionPolicyViolatedId: {
			id: VersionPolicyViolatedId,
			mdMsg: `
# Versionless policy violated!

Every dependency must resolve to a single version, unless it is allow-listed.

## Things you can try
- Enable ` + "`policy.use_latest`" + ` to consolidate conflicting versions
- Add intentionally multi-version dependencies to ` + "`policy.versionless_allow_list`" + `
- Remove stale allow-list entries that now resolve to a single version`,
		},
		AmbiguousVersionsId: {
			id: AmbiguousVersionsId,
			mdMsg: `
# Ambiguous dependency versions!

A directly requested dependency has children, but it, or one of its children,
resolves to more than one version. Children cannot be assigned unambiguously.

## Things you can try
- Enable ` + "`policy.use_latest`" + `
- Remove the dependency from ` + "`policy.use_latest_exemptions`" + `
- Align the versions in your build`,
		},
		MissingChildId: {
			id: MissingChildId,
			mdMsg: `
# Child dependency missing!

A dependency lists a child that no module configuration resolved.

## Things you can try
- Re-export the project manifest after a full dependency resolution
- Exclude the child with an exclude rule if it is not needed`,
		},
		UnreadableArchiveId: {
			id: UnreadableArchiveId,
			mdMsg: `
# Artifact archive is unreadable!

## Things you can try
- Delete the artifact from the registry cache and resolve the build again`,
		},
		ChecksumCacheCorruptId: {
			id: ChecksumCacheCorruptId,
			mdMsg: `
# Checksum cache is corrupt!

## Things you can try
- Delete the checksum cache file; it is rebuilt on the next pass`,
		},
		InvalidProcessorGroupId: {
			id: InvalidProcessorGroupId,
			mdMsg: `
# Invalid annotation processor group!

Processor extensions must be declared next to the processor that hosts them.

## Things you can try
- Add the extension host to the same annotation processor configuration
- Add the host to ` + "`annotation_processors.extension_hosts`",
		},
		CacheWriteFailedId: {
			id: CacheWriteFailedId,
			mdMsg: `
# Failed to write the dependency cache!

## Things you can try
- Check permissions of the cache root
- Make sure no other depforge process is writing the same cache root`,
		},
	}
)

// Values returns every catalogued issue ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, len(ids))
	for i, id := range ids {
		out[i] = issues[id]
	}
	return out
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
