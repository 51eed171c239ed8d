// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"log/slog"
	"path/filepath"

	"github.com/depforge/depforge/pkg/checksum"
	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/rule"
	"github.com/depforge/depforge/pkg/scope"
)

type (
	// Policy holds the version policies applied during consolidation and validation.
	Policy struct {
		// UseLatest resolves identities observed with several versions to one.
		UseLatest bool
		// UseLatestExemptions are "group:name" or "group:*" patterns kept multi-version.
		UseLatestExemptions []string
		// Versionless requires every identity to have a single canonical version
		// unless allow-listed.
		Versionless bool
		// VersionlessAllowList are patterns permitted to keep several versions.
		VersionlessAllowList []string
		// PropagateFirstLevel marks every version of an identity first-level
		// when any version is.
		PropagateFirstLevel bool
	}

	// Options configures a Manager.
	Options struct {
		// CacheRoot is the directory dependencies are materialized into.
		CacheRoot string
		// ChecksumCachePath is the persisted checksum cache. Defaults to
		// CacheRoot/../checksums.toml.
		ChecksumCachePath string
		// RegistryDirs are remote registry download caches; see depcache.Options.
		RegistryDirs []string
		// Workers bounds Collect parallelism. Zero means one worker per module.
		Workers int

		Policy   Policy
		Purposes map[scope.Purpose]scope.Membership
		// ExtensionHosts are processor identity patterns that host extensions.
		ExtensionHosts    []string
		MetadataCacheSize int

		Resolver VersionResolver
		Emitter  rule.Emitter
		Hasher   checksum.Hasher
		Logger   *slog.Logger
	}
)

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{PropagateFirstLevel: true}
}

func (p Policy) exempt(id dependency.Identity) bool {
	return matchesAny(id, p.UseLatestExemptions)
}

func (p Policy) allowListed(id dependency.Identity) bool {
	return matchesAny(id, p.VersionlessAllowList)
}

func matchesAny(id dependency.Identity, patterns []string) bool {
	for _, pattern := range patterns {
		if id.Matches(pattern) {
			return true
		}
	}
	return false
}

func (o Options) withDefaults() Options {
	if o.ChecksumCachePath == "" {
		o.ChecksumCachePath = filepath.Join(filepath.Dir(filepath.Clean(o.CacheRoot)), "checksums.toml")
	}
	if o.Purposes == nil {
		o.Purposes = scope.DefaultMemberships()
	}
	if o.ExtensionHosts == nil {
		o.ExtensionHosts = scope.DefaultExtensionHosts
	}
	if o.Resolver == nil {
		o.Resolver = LatestResolver{}
	}
	if o.Emitter == nil {
		o.Emitter = rule.ManifestEmitter{}
	}
	if o.Hasher == nil {
		o.Hasher = checksum.SHA256File
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
