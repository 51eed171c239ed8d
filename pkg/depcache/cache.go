// SPDX-License-Identifier: MPL-2.0

package depcache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/depforge/depforge/pkg/dependency"
)

// DefaultMetadataCacheSize bounds the number of memoized archive lookups per pass.
const DefaultMetadataCacheSize = 4096

// ErrNoCacheRoot is returned by New when Options.Root is empty.
var ErrNoCacheRoot = errors.New("cache root is required")

type (
	// Artifact is one resolved artifact of a configuration, as reported by
	// the build's resolver.
	Artifact struct {
		Coordinates  dependency.Coordinates
		File         string
		SourceFile   string
		ProjectLocal bool
		FirstLevel   bool
		SkipPrebuilt bool
		Excludes     []dependency.ExcludeRule
		Children     []dependency.Coordinates
	}

	// Configuration is a named set of resolved artifacts of one module.
	Configuration struct {
		Name      string
		Artifacts []Artifact
		Excludes  []dependency.ExcludeRule
		// Projects lists internal module dependencies by module path.
		Projects []string
	}

	// Options configures a Cache.
	Options struct {
		// Root is the cache root directory that materialized dependencies live under.
		Root string
		// RegistryDirs are the download caches of remote registries. When set,
		// artifacts outside every registry dir are considered local.
		RegistryDirs []string
		// MetadataCacheSize bounds the archive metadata memo.
		MetadataCacheSize int
		Logger            *slog.Logger
	}

	// Cache answers dependency questions for one cache root during one pass.
	// It is safe for concurrent use.
	Cache struct {
		root         string
		registryDirs []string
		logger       *slog.Logger
		meta         *lru.Cache[metaKey, metaValue]
	}

	metaKey struct {
		file  string
		query string
	}

	metaValue struct {
		lines []string
		path  string
		found bool
	}
)

// New creates a Cache rooted at opts.Root.
func New(opts Options) (*Cache, error) {
	if opts.Root == "" {
		return nil, ErrNoCacheRoot
	}
	size := opts.MetadataCacheSize
	if size <= 0 {
		size = DefaultMetadataCacheSize
	}
	meta, err := lru.New[metaKey, metaValue](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dirs := make([]string, 0, len(opts.RegistryDirs))
	for _, d := range opts.RegistryDirs {
		if d == "" {
			continue
		}
		if abs, err := filepath.Abs(d); err == nil {
			d = abs
		}
		dirs = append(dirs, filepath.Clean(d))
	}

	return &Cache{root: opts.Root, registryDirs: dirs, logger: logger, meta: meta}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Dir returns the materialization directory for a dependency identity.
func (c *Cache) Dir(id dependency.Identity) string {
	return filepath.Join(c.root, filepath.FromSlash(id.GroupPath()))
}

// Close drops the per-pass memo.
func (c *Cache) Close() {
	c.meta.Purge()
}

// Extract converts a configuration's resolved artifacts into requests, one
// per distinct coordinates. Artifacts that are directories or are not jar,
// aar or pex archives are dropped.
func (c *Cache) Extract(cfg Configuration) ([]dependency.Request, error) {
	var (
		out   []dependency.Request
		index = make(map[dependency.Coordinates]int)
	)
	for _, a := range cfg.Artifacts {
		if err := a.Coordinates.Validate(); err != nil {
			return nil, fmt.Errorf("configuration %s: %w", cfg.Name, err)
		}
		packaging, ok := dependency.PackagingFromFile(a.File)
		if !ok {
			c.logger.Debug("skipping non-archive artifact", "configuration", cfg.Name, "file", a.File)
			continue
		}
		if info, err := os.Stat(a.File); err == nil && info.IsDir() {
			c.logger.Debug("skipping directory artifact", "configuration", cfg.Name, "file", a.File)
			continue
		}

		req := dependency.Request{
			Coordinates:  a.Coordinates,
			Packaging:    packaging,
			Kind:         c.kindOf(a),
			ArtifactFile: a.File,
			SourceFile:   a.SourceFile,
			FirstLevel:   a.FirstLevel,
			SkipPrebuilt: a.SkipPrebuilt,
			Excludes:     append(append([]dependency.ExcludeRule(nil), cfg.Excludes...), a.Excludes...),
			Children:     append([]dependency.Coordinates(nil), a.Children...),
		}

		if i, seen := index[a.Coordinates]; seen {
			out[i] = mergeRequests(out[i], req)
			continue
		}
		index[a.Coordinates] = len(out)
		out = append(out, req)
	}
	return out, nil
}

// IsLocal reports whether an artifact is built locally rather than fetched.
func (c *Cache) IsLocal(a Artifact) bool {
	return c.kindOf(a) == dependency.KindLocal
}

func (c *Cache) kindOf(a Artifact) dependency.Kind {
	if a.ProjectLocal || a.Coordinates.Version.IsSnapshot() {
		return dependency.KindLocal
	}
	if len(c.registryDirs) > 0 && !c.inRegistry(a.File) {
		return dependency.KindLocal
	}
	return dependency.KindRemote
}

func (c *Cache) inRegistry(file string) bool {
	abs, err := filepath.Abs(file)
	if err != nil {
		return false
	}
	for _, dir := range c.registryDirs {
		rel, err := filepath.Rel(dir, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func mergeRequests(a, b dependency.Request) dependency.Request {
	a.FirstLevel = a.FirstLevel || b.FirstLevel
	a.SkipPrebuilt = a.SkipPrebuilt || b.SkipPrebuilt
	if a.SourceFile == "" {
		a.SourceFile = b.SourceFile
	}
	a.Excludes = append(a.Excludes, b.Excludes...)
	a.Children = append(a.Children, b.Children...)
	return a
}
