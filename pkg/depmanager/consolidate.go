// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"context"
	"fmt"

	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/dependency"
)

// propagateFirstLevel marks every version of an identity first-level when
// any of its versions is. It must run before consolidate so that a
// first-level request for a version that loses consolidation still marks
// the winner.
func (p *Pass) propagateFirstLevel() {
	for _, byVersion := range p.table {
		first := false
		for _, b := range byVersion {
			first = first || b.FirstLevel()
		}
		if !first {
			continue
		}
		for _, b := range byVersion {
			b.MarkFirstLevel()
		}
	}
}

// consolidate reduces identities observed with several versions to the
// resolver's choice when the use-latest policy applies to them.
func (p *Pass) consolidate(ctx context.Context) error {
	policy := p.opts.Policy
	if !policy.UseLatest {
		return nil
	}

	var conflicts []Conflict
	for _, id := range p.identities() {
		if len(p.table[id]) < 2 || policy.exempt(id) {
			continue
		}
		c := Conflict{Identity: id}
		for _, b := range p.versions(id) {
			dep := b.Build()
			c.Candidates = append(c.Candidates, Candidate{
				Version:      dep.Version(),
				ArtifactFile: dep.ArtifactFile(),
				SourceFile:   dep.SourceFile(),
				FirstLevel:   dep.FirstLevel(),
			})
		}
		conflicts = append(conflicts, c)
	}
	if len(conflicts) == 0 {
		return nil
	}

	resolutions, err := p.opts.Resolver.Resolve(ctx, conflicts)
	if err != nil {
		return fmt.Errorf("failed to resolve %d version conflict(s): %w", len(conflicts), err)
	}

	answered := make(map[dependency.Identity]Resolution, len(resolutions))
	for _, r := range resolutions {
		answered[r.Coordinates.Identity] = r
	}
	for _, c := range conflicts {
		r, ok := answered[c.Identity]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnresolvedConflict, c.Identity)
		}
		chosen, err := p.chosenBuilder(c, r)
		if err != nil {
			return err
		}
		versions := make([]dependency.Version, len(c.Candidates))
		for i, cand := range c.Candidates {
			versions[i] = cand.Version
		}
		p.table[c.Identity] = map[dependency.Version]*dependency.Builder{chosen.Coordinates().Version: chosen}
		p.conflicts = append(p.conflicts, ResolvedConflict{Identity: c.Identity, Versions: versions, Chosen: r.Coordinates.Version})
		p.logger.Info("resolved version conflict", "dependency", c.Identity.String(),
			"candidates", joinVersions(versions), "chosen", r.Coordinates.Version)
	}
	return nil
}

// chosenBuilder returns the builder for the resolved version. A version the
// pass never observed is materialized from the resolver's artifact and
// inherits the union of the observed versions' flags and graph children.
func (p *Pass) chosenBuilder(c Conflict, r Resolution) (*dependency.Builder, error) {
	if b, ok := p.table[c.Identity][r.Coordinates.Version]; ok {
		return b, nil
	}
	if r.ArtifactFile == "" {
		return nil, fmt.Errorf("%w: resolver chose unobserved %s without an artifact file", ErrUnresolvedConflict, r.Coordinates)
	}

	reqs, err := p.deps.Extract(depcache.Configuration{
		Name:      "resolved",
		Artifacts: []depcache.Artifact{{Coordinates: r.Coordinates, File: r.ArtifactFile, SourceFile: r.SourceFile}},
	})
	if err != nil {
		return nil, err
	}
	if len(reqs) != 1 {
		return nil, fmt.Errorf("%w: resolver artifact %s for %s is not an accepted archive", ErrUnresolvedConflict, r.ArtifactFile, r.Coordinates)
	}

	b := dependency.NewBuilder(reqs[0])
	for _, old := range p.table[c.Identity] {
		dep := old.Build()
		b.MergeRequest(dependency.Request{
			Coordinates:  r.Coordinates,
			FirstLevel:   dep.FirstLevel(),
			SkipPrebuilt: dep.SkipPrebuilt(),
			Excludes:     dep.Excludes(),
			Children:     old.GraphChildren(),
		})
	}
	return b, nil
}

// validate checks the versionless policy and reports every violation at once.
func (p *Pass) validate() error {
	policy := p.opts.Policy
	if !policy.Versionless {
		return nil
	}

	var violations []PolicyViolation
	for _, id := range p.identities() {
		versions := versionList(p.versions(id))
		multi := len(versions) > 1
		switch allowed := policy.allowListed(id); {
		case multi && !allowed:
			violations = append(violations, PolicyViolation{Identity: id, Versions: versions})
		case !multi && allowed && exactAllowListEntry(id, policy.VersionlessAllowList):
			violations = append(violations, PolicyViolation{Identity: id, Versions: versions, AllowListed: true})
		}
	}
	if len(violations) > 0 {
		return &VersionPolicyError{Violations: violations}
	}
	return nil
}

// exactAllowListEntry reports whether id is named explicitly rather than
// through a group wildcard; only explicit entries can go stale.
func exactAllowListEntry(id dependency.Identity, patterns []string) bool {
	exact := dependency.NewIdentity(id.Group, id.Name).String()
	for _, pattern := range patterns {
		if pattern == exact {
			return true
		}
	}
	return false
}
