// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/depforge/depforge/internal/cueutil"
	"github.com/depforge/depforge/internal/issue"
	"github.com/depforge/depforge/pkg/depmanager"
	"github.com/depforge/depforge/pkg/rule"
	"github.com/depforge/depforge/pkg/scope"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "depforge"
	// ConfigFileName is the project config file looked up in the project directory.
	ConfigFileName = "depforge.cue"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "DEPFORGE"
)

//go:embed config_schema.cue
var configSchema []byte

// loadWithOptions layers defaults, the CUE config file and the environment.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	path := opts.ConfigFilePath
	if path != "" {
		if !fileExists(path) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'depforge config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", path)).
				BuildError()
		}
	} else {
		candidate := filepath.Join(opts.ProjectDir, ConfigFileName)
		if fileExists(candidate) {
			path = candidate
		}
	}

	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Remove keys the schema does not know").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.source = path

	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check DEPFORGE_* environment overrides").
			Wrap(err).
			BuildError()
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cache_root", d.CacheRoot)
	v.SetDefault("checksum_cache", d.ChecksumCache)
	v.SetDefault("workers", int(d.Workers))
	v.SetDefault("registry_cache_dirs", d.RegistryCacheDirs)
	v.SetDefault("policy.use_latest", d.Policy.UseLatest)
	v.SetDefault("policy.use_latest_exemptions", patternStrings(d.Policy.UseLatestExemptions))
	v.SetDefault("policy.versionless", d.Policy.Versionless)
	v.SetDefault("policy.versionless_allow_list", patternStrings(d.Policy.VersionlessAllowList))
	v.SetDefault("policy.propagate_first_level", d.Policy.PropagateFirstLevel)
	for name, m := range d.Purposes {
		v.SetDefault("purposes."+name+".runtime", m.Runtime)
		v.SetDefault("purposes."+name+".compile", m.Compile)
		v.SetDefault("purposes."+name+".api", m.API)
		v.SetDefault("purposes."+name+".exclude", m.Exclude)
	}
	v.SetDefault("annotation_processors.extension_hosts", patternStrings(d.AnnotationProcessors.ExtensionHosts))
	v.SetDefault("annotation_processors.metadata_cache_size", d.AnnotationProcessors.MetadataCacheSize)
	v.SetDefault("emit.manifest_name", d.Emit.ManifestName)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.color_scheme", string(d.UI.ColorScheme))
}

// loadCUEIntoViper validates path against #Config and merges it into v.
// The file decodes to a map so unset keys keep their defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	res, err := cueutil.DecodeFile[map[string]any](configSchema, path, "#Config", cueutil.WithConcrete(false))
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(*res.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// ManagerOptions converts the configuration into dependency manager options.
// Relative paths resolve against baseDir.
func (c *Config) ManagerOptions(baseDir string) (depmanager.Options, error) {
	purposes := make(map[scope.Purpose]scope.Membership, len(c.Purposes))
	for name, m := range c.Purposes {
		p, err := scope.ParsePurpose(name)
		if err != nil {
			return depmanager.Options{}, err
		}
		purposes[p] = m
	}

	registry := make([]string, len(c.RegistryCacheDirs))
	for i, dir := range c.RegistryCacheDirs {
		registry[i] = resolvePath(baseDir, dir)
	}

	return depmanager.Options{
		CacheRoot:         resolvePath(baseDir, c.CacheRoot),
		ChecksumCachePath: resolvePath(baseDir, c.ChecksumCache),
		RegistryDirs:      registry,
		Workers:           int(c.Workers),
		Policy: depmanager.Policy{
			UseLatest:            c.Policy.UseLatest,
			UseLatestExemptions:  patternStrings(c.Policy.UseLatestExemptions),
			Versionless:          c.Policy.Versionless,
			VersionlessAllowList: patternStrings(c.Policy.VersionlessAllowList),
			PropagateFirstLevel:  c.Policy.PropagateFirstLevel,
		},
		Purposes:          purposes,
		ExtensionHosts:    patternStrings(c.AnnotationProcessors.ExtensionHosts),
		MetadataCacheSize: c.AnnotationProcessors.MetadataCacheSize,
		Emitter:           rule.ManifestEmitter{FileName: c.Emit.ManifestName},
	}, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a depforge.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// depforge configuration\n\n")
	fmt.Fprintf(&sb, "cache_root: %q\n", cfg.CacheRoot)
	fmt.Fprintf(&sb, "checksum_cache: %q\n", cfg.ChecksumCache)
	fmt.Fprintf(&sb, "workers: %d\n", int(cfg.Workers))
	fmt.Fprintf(&sb, "registry_cache_dirs: %s\n", cueList(cfg.RegistryCacheDirs))

	sb.WriteString("\npolicy: {\n")
	fmt.Fprintf(&sb, "\tuse_latest: %v\n", cfg.Policy.UseLatest)
	fmt.Fprintf(&sb, "\tuse_latest_exemptions: %s\n", cueList(patternStrings(cfg.Policy.UseLatestExemptions)))
	fmt.Fprintf(&sb, "\tversionless: %v\n", cfg.Policy.Versionless)
	fmt.Fprintf(&sb, "\tversionless_allow_list: %s\n", cueList(patternStrings(cfg.Policy.VersionlessAllowList)))
	fmt.Fprintf(&sb, "\tpropagate_first_level: %v\n", cfg.Policy.PropagateFirstLevel)
	sb.WriteString("}\n")

	sb.WriteString("\npurposes: {\n")
	names := make([]string, 0, len(cfg.Purposes))
	for name := range cfg.Purposes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		m := cfg.Purposes[name]
		fmt.Fprintf(&sb, "\t%s: {runtime: %q, compile: %q, api: %q, exclude: %q}\n", name, m.Runtime, m.Compile, m.API, m.Exclude)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nannotation_processors: {\n")
	fmt.Fprintf(&sb, "\textension_hosts: %s\n", cueList(patternStrings(cfg.AnnotationProcessors.ExtensionHosts)))
	fmt.Fprintf(&sb, "\tmetadata_cache_size: %d\n", cfg.AnnotationProcessors.MetadataCacheSize)
	sb.WriteString("}\n")

	sb.WriteString("\nemit: {\n")
	fmt.Fprintf(&sb, "\tmanifest_name: %q\n", cfg.Emit.ManifestName)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
