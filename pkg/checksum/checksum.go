// SPDX-License-Identifier: MPL-2.0

// Package checksum maintains the persisted content-checksum cache used when
// materializing remote dependencies. Entries are keyed by a location-derived
// key so that an unchanged artifact location is never hashed twice.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// FormatVersion is the on-disk format version written by Save.
const FormatVersion = 1

// ErrUnsupportedFormat is returned when a cache file declares an unknown format version.
var ErrUnsupportedFormat = errors.New("unsupported checksum cache format")

type (
	// Hasher computes the hex-encoded content checksum of a file.
	Hasher func(path string) (string, error)

	// Cache is a concurrency-safe location-key to checksum map backed by a file.
	Cache struct {
		path   string
		hasher Hasher
		logger *slog.Logger

		mu      sync.Mutex
		entries map[string]string
		dirty   bool
	}

	// Option configures a Cache.
	Option func(*Cache)

	fileFormat struct {
		Version   int               `toml:"version"`
		Checksums map[string]string `toml:"checksums"`
	}
)

// WithHasher replaces the default SHA-256 file hasher.
func WithHasher(h Hasher) Option {
	return func(c *Cache) { c.hasher = h }
}

// WithLogger sets the logger used for hit and miss diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// Load reads the cache file at path. A missing file yields an empty cache;
// any other read or decode failure is returned.
func Load(path string, opts ...Option) (*Cache, error) {
	c := &Cache{
		path:    path,
		hasher:  SHA256File,
		logger:  slog.Default(),
		entries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read checksum cache: %w", err)
	}

	var f fileFormat
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse checksum cache %s: %w", path, err)
	}
	if f.Version != 0 && f.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d in %s", ErrUnsupportedFormat, f.Version, path)
	}
	maps.Copy(c.entries, f.Checksums)
	return c, nil
}

// LocationKey returns the cache key for an artifact location.
func LocationKey(file string) string {
	if abs, err := filepath.Abs(file); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(file)
}

// Sum returns the checksum for file, hashing it only if its location key is
// not already cached.
func (c *Cache) Sum(file string) (string, error) {
	key := LocationKey(file)

	c.mu.Lock()
	if sum, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.logger.Debug("checksum cache hit", "key", key)
		return sum, nil
	}
	c.mu.Unlock()

	sum, err := c.hasher(file)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", file, err)
	}
	c.logger.Debug("checksum cache miss", "key", key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing, nil
	}
	c.entries[key] = sum
	c.dirty = true
	return sum, nil
}

// Lookup returns the cached checksum for a location key without hashing.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum, ok := c.entries[key]
	return sum, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Prune removes entries whose location no longer satisfies exists and
// returns the removed keys.
func (c *Cache) Prune(exists func(key string) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for key := range c.entries {
		if !exists(key) {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		delete(c.entries, key)
	}
	if len(removed) > 0 {
		c.dirty = true
	}
	return removed
}

// Path returns the backing file path.
func (c *Cache) Path() string { return c.path }

// Save writes the cache to its backing file atomically. Saving an unchanged
// cache that already exists on disk is a no-op.
func (c *Cache) Save() error {
	c.mu.Lock()
	f := fileFormat{Version: FormatVersion, Checksums: maps.Clone(c.entries)}
	dirty := c.dirty
	c.mu.Unlock()

	if !dirty {
		if _, err := os.Stat(c.path); err == nil {
			return nil
		}
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode checksum cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checksum cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename checksum cache: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// SHA256File streams path through SHA-256 and returns the hex digest.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
