// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/scope"
)

// moduleResult is the private buffer one Collect worker fills for one module.
type moduleResult struct {
	requests   []dependency.Request
	scopes     ModuleScopes
	processors []*scope.AnnotationProcessorScope
}

// collect runs one worker per module (bounded by Options.Workers), each
// filling its own result slot, then merges the slots into the global table
// in module order.
func (p *Pass) collect(ctx context.Context, modules []Module) error {
	results := make([]moduleResult, len(modules))

	g, gctx := errgroup.WithContext(ctx)
	workers := p.opts.Workers
	if workers <= 0 {
		workers = len(modules)
	}
	g.SetLimit(workers)

	for i, m := range modules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.collectModule(m)
			if err != nil {
				return &ModuleError{Module: m.Path, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		for _, req := range res.requests {
			p.add(req)
		}
		p.modules = append(p.modules, res.scopes)
		for _, ap := range res.processors {
			p.processors[ap.AnnotationProcessorsUID()] = ap
		}
	}
	p.logger.Info("collected dependencies", "modules", len(modules), "identities", len(p.table))
	return nil
}

func (p *Pass) collectModule(m Module) (moduleResult, error) {
	cache := scope.NewCache(m.Path, m, p.deps)
	defer cache.Close()

	res := moduleResult{scopes: ModuleScopes{Module: m.Path, Scopes: make(map[scope.Purpose]*scope.Scope)}}
	for _, name := range m.ConfigurationNames() {
		r, err := cache.Configuration(name)
		if err != nil {
			return moduleResult{}, err
		}
		res.requests = append(res.requests, r.Requests...)
	}

	for _, purpose := range scope.Purposes() {
		membership, ok := p.opts.Purposes[purpose]
		if !ok {
			continue
		}
		s, err := cache.Scope(purpose, membership)
		if err != nil {
			return moduleResult{}, err
		}
		res.scopes.Scopes[purpose] = s

		if purpose != scope.PurposeAnnotationProcessor {
			continue
		}
		r, err := cache.Configuration(membership.Runtime)
		if err != nil {
			return moduleResult{}, err
		}
		groups, err := scope.ProcessorGroups(r.Requests, p.deps, p.opts.ExtensionHosts)
		if err != nil {
			return moduleResult{}, fmt.Errorf("configuration %s: %w", membership.Runtime, err)
		}
		res.processors = append(res.processors, groups...)
	}

	p.logger.Debug("collected module", "module", m.Path,
		"configurations", strings.Join(m.ConfigurationNames(), ","),
		"requests", len(res.requests), "processor_groups", len(res.processors))
	return res, nil
}

// processorScopes returns every collected processor group sorted by UID.
func (p *Pass) processorScopes() []*scope.AnnotationProcessorScope {
	out := make([]*scope.AnnotationProcessorScope, 0, len(p.processors))
	for _, ap := range p.processors {
		out = append(out, ap)
	}
	slices.SortFunc(out, func(a, b *scope.AnnotationProcessorScope) int {
		return strings.Compare(a.AnnotationProcessorsUID(), b.AnnotationProcessorsUID())
	})
	return out
}
