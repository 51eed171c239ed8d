// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"github.com/depforge/depforge/pkg/dependency"
)

// reconcileChildren maps the graph children of every first-level dependency
// onto canonical records. Children matched by the parent's exclude rules
// are dropped. A child without a canonical record, a child with several
// canonical versions, and a multi-version parent that would receive
// children are all fatal.
func (p *Pass) reconcileChildren() error {
	for _, id := range p.identities() {
		builders := p.versions(id)
		if !anyFirstLevel(builders) {
			continue
		}

		if len(builders) > 1 {
			for _, b := range builders {
				if len(p.liveChildren(b)) > 0 {
					return &AmbiguousChildrenError{Identity: id, Versions: versionList(builders)}
				}
			}
			continue
		}

		b := builders[0]
		var children []dependency.Identity
		for _, child := range p.liveChildren(b) {
			candidates := p.table[child.Identity]
			switch len(candidates) {
			case 0:
				return &MissingChildError{Parent: b.Coordinates(), Child: child}
			case 1:
				children = append(children, child.Identity)
			default:
				parent := b.Coordinates()
				return &AmbiguousChildrenError{
					Identity: child.Identity,
					Versions: versionList(p.versions(child.Identity)),
					Parent:   &parent,
				}
			}
		}
		b.SetChildren(children)
	}
	return nil
}

func (p *Pass) liveChildren(b *dependency.Builder) []dependency.Coordinates {
	excludes := b.Excludes()
	var out []dependency.Coordinates
	for _, child := range b.GraphChildren() {
		if child.Identity == b.Identity() || dependency.Excluded(excludes, child.Identity) {
			continue
		}
		out = append(out, child)
	}
	return out
}

func anyFirstLevel(bs []*dependency.Builder) bool {
	for _, b := range bs {
		if b.FirstLevel() {
			return true
		}
	}
	return false
}

// build freezes the table into immutable canonical records.
func (p *Pass) build() {
	p.canonical = make(map[dependency.Identity][]*dependency.Dependency, len(p.table))
	for id := range p.table {
		builders := p.versions(id)
		deps := make([]*dependency.Dependency, len(builders))
		for i, b := range builders {
			deps[i] = b.Build()
		}
		p.canonical[id] = deps
	}
}

// dependencies returns every canonical record sorted by identity and version.
func (p *Pass) dependencies() []*dependency.Dependency {
	var out []*dependency.Dependency
	for _, id := range p.identities() {
		out = append(out, p.canonical[id]...)
	}
	return out
}

// multiVersion returns identities that kept more than one canonical version.
func (p *Pass) multiVersion() []dependency.Identity {
	var out []dependency.Identity
	for _, id := range p.identities() {
		if len(p.canonical[id]) > 1 {
			out = append(out, id)
		}
	}
	return out
}
