// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/dependency"
)

// ErrCacheClosed is returned when a Cache is used after Close.
var ErrCacheClosed = errors.New("scope cache is closed")

type (
	// Source exposes a module's declared configurations by name.
	Source interface {
		Configuration(name string) (depcache.Configuration, bool)
	}

	// Extractor turns a configuration into dependency requests.
	Extractor interface {
		Extract(cfg depcache.Configuration) ([]dependency.Request, error)
	}

	// Resolved is an extracted configuration.
	Resolved struct {
		Name     string
		Requests []dependency.Request
		Projects []string
	}

	// Cache memoizes extracted configurations and built scopes for one module
	// for the duration of that module's collection. Keys are configuration
	// names, so two modules never share entries.
	Cache struct {
		module string
		src    Source
		ex     Extractor

		mu      sync.Mutex
		configs map[string]*Resolved
		scopes  map[Purpose]*Scope
		closed  bool
	}
)

// NewCache creates a scope cache for module.
func NewCache(module string, src Source, ex Extractor) *Cache {
	return &Cache{
		module:  module,
		src:     src,
		ex:      ex,
		configs: make(map[string]*Resolved),
		scopes:  make(map[Purpose]*Scope),
	}
}

// Module returns the module path the cache is bound to.
func (c *Cache) Module() string { return c.module }

// Configuration returns the extracted configuration called name. A name the
// module does not declare resolves to an empty configuration.
func (c *Cache) Configuration(name string) (*Resolved, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configurationLocked(name)
}

func (c *Cache) configurationLocked(name string) (*Resolved, error) {
	if c.closed {
		return nil, ErrCacheClosed
	}
	if r, ok := c.configs[name]; ok {
		return r, nil
	}

	r := &Resolved{Name: name}
	if name != "" {
		if cfg, ok := c.src.Configuration(name); ok {
			reqs, err := c.ex.Extract(cfg)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", c.module, err)
			}
			r.Requests = reqs
			r.Projects = slices.Clone(cfg.Projects)
		}
	}
	c.configs[name] = r
	return r, nil
}

// Scope builds, or returns the memoized, scope for purpose.
func (c *Cache) Scope(purpose Purpose, m Membership) (*Scope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	if s, ok := c.scopes[purpose]; ok {
		return s, nil
	}

	var sets [4]*Resolved
	for i, name := range []string{m.Runtime, m.Compile, m.API, m.Exclude} {
		r, err := c.configurationLocked(name)
		if err != nil {
			return nil, err
		}
		sets[i] = r
	}
	s := build(c.module, purpose, sets[0], sets[1], sets[2], sets[3])
	c.scopes[purpose] = s
	return s, nil
}

// Close drops every memoized entry. Further use returns ErrCacheClosed.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = nil
	c.scopes = nil
	c.closed = true
}

func build(module string, purpose Purpose, runtime, compile, api, exclude *Resolved) *Scope {
	byID := make(map[dependency.Identity]dependency.Request)
	ids := func(r *Resolved) []dependency.Identity {
		out := make([]dependency.Identity, 0, len(r.Requests))
		for _, req := range r.Requests {
			if prev, ok := byID[req.Identity]; ok {
				prev.FirstLevel = prev.FirstLevel || req.FirstLevel
				byID[req.Identity] = prev
			} else {
				byID[req.Identity] = req
			}
			out = append(out, req.Identity)
		}
		return out
	}

	// runtime first so that the runtime observation wins for shared identities
	rIDs := ids(runtime)
	cIDs := ids(compile)
	aIDs := ids(api)
	var eIDs []dependency.Identity
	for _, req := range exclude.Requests {
		eIDs = append(eIDs, req.Identity)
	}

	impl, apiIDs, prov := Derive(rIDs, cIDs, aIDs, eIDs)
	lookup := func(keys []dependency.Identity) []dependency.Request {
		out := make([]dependency.Request, 0, len(keys))
		for _, k := range keys {
			out = append(out, byID[k])
		}
		sortRequests(out)
		return out
	}

	iImpl, iAPI, iProv := Derive(runtime.Projects, compile.Projects, api.Projects, exclude.Projects)
	for _, s := range [][]string{iImpl, iAPI, iProv} {
		slices.Sort(s)
	}

	return &Scope{
		module:                 module,
		purpose:                purpose,
		implementation:         lookup(impl),
		api:                    lookup(apiIDs),
		provided:               lookup(prov),
		internalImplementation: iImpl,
		internalAPI:            iAPI,
		internalProvided:       iProv,
	}
}
