// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"log/slog"
	"slices"

	"github.com/depforge/depforge/pkg/checksum"
	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/scope"
)

// Pass owns every piece of state of one resolution pass. Nothing is shared
// between passes; a Pass is closed when the pass ends.
type Pass struct {
	opts   Options
	logger *slog.Logger
	deps   *depcache.Cache
	sums   *checksum.Cache

	// table is the global identity -> version -> builder map. It is only
	// written single-threaded, after Collect has merged its worker buffers.
	table map[dependency.Identity]map[dependency.Version]*dependency.Builder

	modules    []ModuleScopes
	processors map[string]*scope.AnnotationProcessorScope
	conflicts  []ResolvedConflict
	canonical  map[dependency.Identity][]*dependency.Dependency
	dirs       []string
}

func newPass(opts Options) (*Pass, error) {
	deps, err := depcache.New(depcache.Options{
		Root:              opts.CacheRoot,
		RegistryDirs:      opts.RegistryDirs,
		MetadataCacheSize: opts.MetadataCacheSize,
		Logger:            opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Pass{
		opts:       opts,
		logger:     opts.Logger,
		deps:       deps,
		table:      make(map[dependency.Identity]map[dependency.Version]*dependency.Builder),
		processors: make(map[string]*scope.AnnotationProcessorScope),
	}, nil
}

// Close releases the pass's memoized state.
func (p *Pass) Close() {
	p.deps.Close()
	p.table = nil
}

// identities returns every identity in the table, sorted.
func (p *Pass) identities() []dependency.Identity {
	ids := make([]dependency.Identity, 0, len(p.table))
	for id := range p.table {
		ids = append(ids, id)
	}
	dependency.SortIdentities(ids)
	return ids
}

// versions returns the builders of id sorted by version precedence.
func (p *Pass) versions(id dependency.Identity) []*dependency.Builder {
	bs := make([]*dependency.Builder, 0, len(p.table[id]))
	for _, b := range p.table[id] {
		bs = append(bs, b)
	}
	slices.SortFunc(bs, func(a, b *dependency.Builder) int {
		return CompareVersions(a.Coordinates().Version, b.Coordinates().Version)
	})
	return bs
}

func versionList(bs []*dependency.Builder) []dependency.Version {
	out := make([]dependency.Version, len(bs))
	for i, b := range bs {
		out[i] = b.Coordinates().Version
	}
	return out
}

func (p *Pass) add(req dependency.Request) {
	byVersion, ok := p.table[req.Identity]
	if !ok {
		byVersion = make(map[dependency.Version]*dependency.Builder)
		p.table[req.Identity] = byVersion
	}
	if b, ok := byVersion[req.Version]; ok {
		b.MergeRequest(req)
		return
	}
	byVersion[req.Version] = dependency.NewBuilder(req)
}
