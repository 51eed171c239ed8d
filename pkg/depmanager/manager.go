// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/depforge/depforge/pkg/checksum"
	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/scope"
)

// ErrNoCacheRoot is returned by New when Options.CacheRoot is empty.
var ErrNoCacheRoot = errors.New("cache root is required")

type (
	// Manager runs resolution passes. Each call to Run or Plan uses a fresh
	// Pass, so a Manager can be reused and called from several goroutines.
	Manager struct {
		opts Options
	}

	// Result is the outcome of a pass.
	Result struct {
		Dependencies []*dependency.Dependency
		// MultiVersion lists identities that kept several canonical versions.
		MultiVersion []dependency.Identity
		Conflicts    []ResolvedConflict
		Modules      []ModuleScopes
		Processors   []*scope.AnnotationProcessorScope
		// Directories are the cache directories materialized, in creation order.
		Directories []string
		Duration    time.Duration
	}
)

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.CacheRoot == "" {
		return nil, ErrNoCacheRoot
	}
	return &Manager{opts: opts.withDefaults()}, nil
}

// Options returns the effective options, defaults applied.
func (m *Manager) Options() Options { return m.opts }

// Run performs a full pass: collect, first-level propagation, consolidate,
// validate, reconcile children, materialize. The checksum cache is
// persisted even when a phase fails; a persistence failure is only
// returned when the pass itself succeeded.
func (m *Manager) Run(ctx context.Context, modules []Module) (res *Result, err error) {
	start := time.Now()
	pass, err := newPass(m.opts)
	if err != nil {
		return nil, err
	}
	defer pass.Close()

	sums, err := checksum.Load(m.opts.ChecksumCachePath, checksum.WithHasher(m.opts.Hasher), checksum.WithLogger(m.opts.Logger))
	if err != nil {
		return nil, err
	}
	pass.sums = sums
	defer func() {
		if saveErr := sums.Save(); saveErr != nil {
			if err == nil {
				res, err = nil, saveErr
				return
			}
			m.opts.Logger.Warn("failed to persist checksum cache", "path", sums.Path(), "error", saveErr)
			return
		}
		m.opts.Logger.Debug("persisted checksum cache", "path", sums.Path(), "entries", sums.Len())
	}()

	if err := m.resolve(ctx, pass, modules); err != nil {
		return nil, err
	}
	if err := pass.materialize(ctx); err != nil {
		return nil, err
	}
	return pass.result(start), nil
}

// Plan performs every phase up to and including child reconciliation,
// without touching the cache root or the checksum cache.
func (m *Manager) Plan(ctx context.Context, modules []Module) (*Result, error) {
	start := time.Now()
	pass, err := newPass(m.opts)
	if err != nil {
		return nil, err
	}
	defer pass.Close()

	if err := m.resolve(ctx, pass, modules); err != nil {
		return nil, err
	}
	return pass.result(start), nil
}

func (m *Manager) resolve(ctx context.Context, pass *Pass, modules []Module) error {
	if len(modules) == 0 {
		return ErrNoModules
	}
	m.opts.Logger.Info("starting resolution pass", "modules", len(modules), "cache_root", m.opts.CacheRoot)

	if err := pass.collect(ctx, modules); err != nil {
		return err
	}
	if m.opts.Policy.PropagateFirstLevel {
		pass.propagateFirstLevel()
	}
	if err := pass.consolidate(ctx); err != nil {
		return err
	}
	if err := pass.validate(); err != nil {
		return err
	}
	if err := pass.reconcileChildren(); err != nil {
		return fmt.Errorf("failed to reconcile dependency children: %w", err)
	}
	pass.build()
	return nil
}

func (p *Pass) result(start time.Time) *Result {
	return &Result{
		Dependencies: p.dependencies(),
		MultiVersion: p.multiVersion(),
		Conflicts:    p.conflicts,
		Modules:      p.modules,
		Processors:   p.processorScopes(),
		Directories:  p.dirs,
		Duration:     time.Since(start),
	}
}

// Lookup returns the canonical records of id.
func (r *Result) Lookup(id dependency.Identity) []*dependency.Dependency {
	var out []*dependency.Dependency
	for _, d := range r.Dependencies {
		if d.Identity() == id {
			out = append(out, d)
		}
	}
	return out
}
