// SPDX-License-Identifier: MPL-2.0

package dependency

import (
	"cmp"
	"slices"
)

type (
	// Request is one module configuration's observation of a resolved artifact.
	// Several modules may observe the same coordinates; the manager merges
	// them into a single Builder.
	Request struct {
		Coordinates
		Packaging    Packaging
		Kind         Kind
		ArtifactFile string
		SourceFile   string
		// FirstLevel is true when the requesting configuration declared the
		// dependency directly rather than receiving it transitively.
		FirstLevel   bool
		SkipPrebuilt bool
		Excludes     []ExcludeRule
		// Children are the dependency's children in the unresolved graph, as
		// observed before any version consolidation.
		Children []Coordinates
	}

	// Dependency is an immutable canonical dependency record.
	Dependency struct {
		coords       Coordinates
		packaging    Packaging
		kind         Kind
		artifactFile string
		sourceFile   string
		firstLevel   bool
		skipPrebuilt bool
		excludes     []ExcludeRule
		children     []Identity
	}

	// Builder accumulates the mutable state of a canonical record during a
	// pass. It is owned by a single goroutine.
	Builder struct {
		coords       Coordinates
		packaging    Packaging
		kind         Kind
		artifactFile string
		sourceFile   string
		firstLevel   bool
		skipPrebuilt bool
		excludes     []ExcludeRule
		graph        []Coordinates
		children     []Identity
		childrenSet  bool
	}
)

// NewBuilder starts a canonical record from its first observation.
func NewBuilder(req Request) *Builder {
	b := &Builder{
		coords:       req.Coordinates,
		packaging:    req.Packaging,
		kind:         req.Kind,
		artifactFile: req.ArtifactFile,
		sourceFile:   req.SourceFile,
	}
	b.MergeRequest(req)
	return b
}

// MergeRequest folds another observation of the same coordinates into b.
// First-level and skip-prebuilt flags are OR-ed, exclude rules and graph
// children are unioned, and a missing source file is filled in.
func (b *Builder) MergeRequest(req Request) {
	b.firstLevel = b.firstLevel || req.FirstLevel
	b.skipPrebuilt = b.skipPrebuilt || req.SkipPrebuilt
	if b.sourceFile == "" {
		b.sourceFile = req.SourceFile
	}
	for _, r := range req.Excludes {
		if !slices.Contains(b.excludes, r) {
			b.excludes = append(b.excludes, r)
		}
	}
	for _, c := range req.Children {
		if !slices.Contains(b.graph, c) {
			b.graph = append(b.graph, c)
		}
	}
}

// Coordinates returns the builder's coordinates.
func (b *Builder) Coordinates() Coordinates { return b.coords }

// Identity returns the builder's identity.
func (b *Builder) Identity() Identity { return b.coords.Identity }

// FirstLevel reports whether any observation declared the dependency directly.
func (b *Builder) FirstLevel() bool { return b.firstLevel }

// MarkFirstLevel sets the first-level flag. The flag never goes back to false.
func (b *Builder) MarkFirstLevel() { b.firstLevel = true }

// ArtifactFile returns the observed artifact path.
func (b *Builder) ArtifactFile() string { return b.artifactFile }

// Excludes returns the accumulated exclude rules.
func (b *Builder) Excludes() []ExcludeRule { return slices.Clone(b.excludes) }

// GraphChildren returns the children observed in the unresolved graph.
func (b *Builder) GraphChildren() []Coordinates { return slices.Clone(b.graph) }

// HasChildren reports whether children were assigned.
func (b *Builder) HasChildren() bool { return b.childrenSet }

// SetChildren assigns the reconciled children. The manager guarantees this
// is only called for identities with a single canonical version.
func (b *Builder) SetChildren(children []Identity) {
	b.children = slices.Clone(children)
	SortIdentities(b.children)
	b.children = slices.Compact(b.children)
	b.childrenSet = true
}

// Build returns the immutable record.
func (b *Builder) Build() *Dependency {
	return &Dependency{
		coords:       b.coords,
		packaging:    b.packaging,
		kind:         b.kind,
		artifactFile: b.artifactFile,
		sourceFile:   b.sourceFile,
		firstLevel:   b.firstLevel,
		skipPrebuilt: b.skipPrebuilt,
		excludes:     slices.Clone(b.excludes),
		children:     slices.Clone(b.children),
	}
}

// Coordinates returns the pinned coordinates.
func (d *Dependency) Coordinates() Coordinates { return d.coords }

// Identity returns the version-independent identity.
func (d *Dependency) Identity() Identity { return d.coords.Identity }

// Version returns the canonical version.
func (d *Dependency) Version() Version { return d.coords.Version }

// Packaging returns the archive format.
func (d *Dependency) Packaging() Packaging { return d.packaging }

// Kind returns whether the dependency is local or remote.
func (d *Dependency) Kind() Kind { return d.kind }

// ArtifactFile returns the real location of the binary artifact.
func (d *Dependency) ArtifactFile() string { return d.artifactFile }

// SourceFile returns the real location of the sources archive, if known.
func (d *Dependency) SourceFile() string { return d.sourceFile }

// FirstLevel reports whether any module requested the dependency directly.
func (d *Dependency) FirstLevel() bool { return d.firstLevel }

// SkipPrebuilt reports whether no prebuilt rule should be emitted for it.
func (d *Dependency) SkipPrebuilt() bool { return d.skipPrebuilt }

// Excludes returns a copy of the exclude rules.
func (d *Dependency) Excludes() []ExcludeRule { return slices.Clone(d.excludes) }

// Children returns a copy of the children as identity keys into the canonical table.
func (d *Dependency) Children() []Identity { return slices.Clone(d.children) }

// FileName returns "name--version[--classifier].packaging".
func (d *Dependency) FileName() string {
	return d.coords.CacheName() + "." + string(d.packaging)
}

// SourcesFileName returns "name--version[--classifier]-sources.jar".
func (d *Dependency) SourcesFileName() string {
	return d.coords.CacheName() + "-sources.jar"
}

// CompareIdentity orders identities by group, name, then classifier.
func CompareIdentity(a, b Identity) int {
	return cmp.Or(
		cmp.Compare(a.Group, b.Group),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Classifier, b.Classifier),
	)
}

// SortIdentities sorts ids in place.
func SortIdentities(ids []Identity) {
	slices.SortFunc(ids, CompareIdentity)
}

// SortDependencies sorts deps in place by identity then version string.
func SortDependencies(deps []*Dependency) {
	slices.SortFunc(deps, func(a, b *Dependency) int {
		return cmp.Or(
			CompareIdentity(a.Identity(), b.Identity()),
			cmp.Compare(a.Version(), b.Version()),
		)
	})
}
