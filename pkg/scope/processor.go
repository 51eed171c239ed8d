// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/depforge/depforge/pkg/dependency"
)

// DefaultExtensionHosts are processors that load extensions from their own
// classpath, so extensions must share a processor rule with them.
var DefaultExtensionHosts = []string{"com.google.auto.value:auto-value"}

var (
	// ErrInvalidProcessorGroup is returned when a multi-dependency processor
	// group has no extension host.
	ErrInvalidProcessorGroup = errors.New("invalid annotation processor group")
	// ErrEmptyProcessorGroup is returned when a processor group has no dependencies.
	ErrEmptyProcessorGroup = errors.New("empty annotation processor group")
)

type (
	// Inspector answers archive questions about an artifact file.
	Inspector interface {
		AnnotationProcessors(file string) ([]string, error)
		HasExtensionMarker(file string) (bool, error)
	}

	// AnnotationProcessorScope is one group of processor dependencies that
	// share a processor classpath.
	AnnotationProcessorScope struct {
		uid        string
		host       *dependency.Coordinates
		deps       []dependency.Coordinates
		processors []string
	}
)

// NewAnnotationProcessorScope validates a processor group. A group with more
// than one dependency must contain one matching an extension host pattern.
func NewAnnotationProcessorScope(deps []dependency.Coordinates, processors, hosts []string) (*AnnotationProcessorScope, error) {
	if len(deps) == 0 {
		return nil, ErrEmptyProcessorGroup
	}
	sorted := slices.Clone(deps)
	slices.SortFunc(sorted, func(a, b dependency.Coordinates) int {
		return strings.Compare(a.Triple(), b.Triple())
	})
	sorted = slices.Compact(sorted)

	s := &AnnotationProcessorScope{deps: sorted}
	procs := slices.Clone(processors)
	slices.Sort(procs)
	s.processors = slices.Compact(procs)

	if len(sorted) == 1 {
		s.uid = sorted[0].Triple()
		return s, nil
	}

	for i := range sorted {
		if isHost(sorted[i].Identity, hosts) {
			s.host = &sorted[i]
			break
		}
	}
	if s.host == nil {
		names := make([]string, len(sorted))
		for i, d := range sorted {
			names[i] = d.String()
		}
		return nil, fmt.Errorf("%w: %s (no extension host among %d dependencies)",
			ErrInvalidProcessorGroup, strings.Join(names, ", "), len(sorted))
	}

	triples := make([]string, len(sorted))
	for i, d := range sorted {
		triples[i] = d.Triple()
	}
	sum := md5.Sum([]byte(strings.Join(triples, "_")))
	s.uid = s.host.Triple() + "__" + hex.EncodeToString(sum[:])
	return s, nil
}

// AnnotationProcessorsUID returns the group's stable identifier.
func (s *AnnotationProcessorScope) AnnotationProcessorsUID() string { return s.uid }

// AnnotationProcessors returns the sorted processor class names of the group.
func (s *AnnotationProcessorScope) AnnotationProcessors() []string {
	return slices.Clone(s.processors)
}

// Dependencies returns the group's dependencies sorted by coordinates.
func (s *AnnotationProcessorScope) Dependencies() []dependency.Coordinates {
	return slices.Clone(s.deps)
}

// Anchor returns the dependency whose cache directory holds the group's rule:
// the extension host for multi-dependency groups, else the only dependency.
func (s *AnnotationProcessorScope) Anchor() dependency.Coordinates {
	if s.host != nil {
		return *s.host
	}
	return s.deps[0]
}

// BasePath returns the anchor's group path relative to the cache root.
func (s *AnnotationProcessorScope) BasePath() string {
	return s.Anchor().GroupPath()
}

// ProcessorGroups splits the first-level members of an annotation processor
// configuration into processor groups. Dependencies carrying the extension
// marker join the extension host's group; every other dependency that
// declares processors gets a group of its own. Dependencies that neither
// declare processors nor carry the marker are ignored.
func ProcessorGroups(reqs []dependency.Request, insp Inspector, hosts []string) ([]*AnnotationProcessorScope, error) {
	type member struct {
		req        dependency.Request
		processors []string
		extension  bool
	}

	var (
		hostMembers []member
		extensions  []member
		standalone  []member
	)
	for _, req := range reqs {
		if !req.FirstLevel {
			continue
		}
		procs, err := insp.AnnotationProcessors(req.ArtifactFile)
		if err != nil {
			return nil, err
		}
		ext, err := insp.HasExtensionMarker(req.ArtifactFile)
		if err != nil {
			return nil, err
		}
		m := member{req: req, processors: procs, extension: ext}
		switch {
		case isHost(req.Identity, hosts):
			hostMembers = append(hostMembers, m)
		case ext:
			extensions = append(extensions, m)
		case len(procs) > 0:
			standalone = append(standalone, m)
		}
	}

	var groups []*AnnotationProcessorScope
	for _, m := range standalone {
		g, err := NewAnnotationProcessorScope([]dependency.Coordinates{m.req.Coordinates}, m.processors, hosts)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	switch {
	case len(hostMembers) == 0 && len(extensions) > 0:
		return nil, fmt.Errorf("%w: extension %s has no extension host in the same configuration",
			ErrInvalidProcessorGroup, extensions[0].req.Coordinates)
	case len(hostMembers) > 1 && len(extensions) > 0:
		return nil, fmt.Errorf("%w: extensions cannot be assigned to one of %d extension hosts",
			ErrInvalidProcessorGroup, len(hostMembers))
	}
	for _, h := range hostMembers {
		deps := []dependency.Coordinates{h.req.Coordinates}
		procs := slices.Clone(h.processors)
		for _, e := range extensions {
			deps = append(deps, e.req.Coordinates)
			procs = append(procs, e.processors...)
		}
		g, err := NewAnnotationProcessorScope(deps, procs, hosts)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b *AnnotationProcessorScope) int {
		return strings.Compare(a.uid, b.uid)
	})
	return groups, nil
}

func isHost(id dependency.Identity, hosts []string) bool {
	for _, h := range hosts {
		if id.Matches(h) {
			return true
		}
	}
	return false
}
