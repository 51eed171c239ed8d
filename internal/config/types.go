// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/scope"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidCoordinatePattern is returned for patterns other than
	// "group:name" or "group:*".
	ErrInvalidCoordinatePattern = errors.New("invalid coordinate pattern")
	// ErrInvalidWorkerCount is returned for a negative worker count.
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// CoordinatePattern selects dependencies by "group:name" or "group:*".
	CoordinatePattern string

	// WorkerCount bounds Collect parallelism. Zero means one worker per module.
	WorkerCount int

	// InvalidConfigError collects every field-level validation failure.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config is the effective depforge configuration.
	Config struct {
		CacheRoot            string                      `json:"cache_root" mapstructure:"cache_root"`
		ChecksumCache        string                      `json:"checksum_cache" mapstructure:"checksum_cache"`
		Workers              WorkerCount                 `json:"workers" mapstructure:"workers"`
		RegistryCacheDirs    []string                    `json:"registry_cache_dirs" mapstructure:"registry_cache_dirs"`
		Policy               PolicyConfig                `json:"policy" mapstructure:"policy"`
		Purposes             map[string]scope.Membership `json:"purposes" mapstructure:"purposes"`
		AnnotationProcessors ProcessorConfig             `json:"annotation_processors" mapstructure:"annotation_processors"`
		Emit                 EmitConfig                  `json:"emit" mapstructure:"emit"`
		UI                   UIConfig                    `json:"ui" mapstructure:"ui"`

		source string
	}

	// PolicyConfig mirrors depmanager.Policy.
	PolicyConfig struct {
		UseLatest            bool                `json:"use_latest" mapstructure:"use_latest"`
		UseLatestExemptions  []CoordinatePattern `json:"use_latest_exemptions" mapstructure:"use_latest_exemptions"`
		Versionless          bool                `json:"versionless" mapstructure:"versionless"`
		VersionlessAllowList []CoordinatePattern `json:"versionless_allow_list" mapstructure:"versionless_allow_list"`
		PropagateFirstLevel  bool                `json:"propagate_first_level" mapstructure:"propagate_first_level"`
	}

	// ProcessorConfig configures annotation processor grouping.
	ProcessorConfig struct {
		ExtensionHosts    []CoordinatePattern `json:"extension_hosts" mapstructure:"extension_hosts"`
		MetadataCacheSize int                 `json:"metadata_cache_size" mapstructure:"metadata_cache_size"`
	}

	// EmitConfig configures rule emission.
	EmitConfig struct {
		ManifestName string `json:"manifest_name" mapstructure:"manifest_name"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}
)

// String returns the string representation of the ColorScheme.
func (c ColorScheme) String() string { return string(c) }

// Validate returns an error if the ColorScheme is not recognized.
func (c ColorScheme) Validate() error {
	switch c {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidColorScheme, string(c))
	}
}

// Validate checks the pattern shape. The group must be a valid identity
// group; the name may be "*".
func (p CoordinatePattern) Validate() error {
	group, name, ok := strings.Cut(string(p), ":")
	if !ok || name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidCoordinatePattern, string(p))
	}
	if name == "*" {
		name = "x"
	}
	if err := (dependency.Identity{Group: group, Name: name}).Validate(); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCoordinatePattern, string(p))
	}
	return nil
}

// Validate rejects negative counts.
func (w WorkerCount) Validate() error {
	if w < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerCount, int(w))
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	purposes := make(map[string]scope.Membership)
	for p, m := range scope.DefaultMemberships() {
		purposes[string(p)] = m
	}
	hosts := make([]CoordinatePattern, len(scope.DefaultExtensionHosts))
	for i, h := range scope.DefaultExtensionHosts {
		hosts[i] = CoordinatePattern(h)
	}
	return &Config{
		CacheRoot:         ".depforge/cache",
		ChecksumCache:     ".depforge/checksums.toml",
		RegistryCacheDirs: []string{},
		Policy: PolicyConfig{
			UseLatestExemptions:  []CoordinatePattern{},
			VersionlessAllowList: []CoordinatePattern{},
			PropagateFirstLevel:  true,
		},
		Purposes: purposes,
		AnnotationProcessors: ProcessorConfig{
			ExtensionHosts:    hosts,
			MetadataCacheSize: 4096,
		},
		Emit: EmitConfig{ManifestName: "rules.toml"},
		UI:   UIConfig{ColorScheme: ColorSchemeAuto},
	}
}

// Source returns the config file the configuration was loaded from, or ""
// when only defaults and environment applied.
func (c *Config) Source() string { return c.source }

// Validate checks constraints the schema cannot see, such as values coming
// from the environment.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CacheRoot) == "" {
		errs = append(errs, errors.New("cache_root: must not be empty"))
	}
	if err := c.Workers.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("workers: %w", err))
	}
	for field, patterns := range map[string][]CoordinatePattern{
		"policy.use_latest_exemptions":          c.Policy.UseLatestExemptions,
		"policy.versionless_allow_list":         c.Policy.VersionlessAllowList,
		"annotation_processors.extension_hosts": c.AnnotationProcessors.ExtensionHosts,
	} {
		for i, p := range patterns {
			if err := p.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", field, i, err))
			}
		}
	}
	for name := range c.Purposes {
		if _, err := scope.ParsePurpose(name); err != nil {
			errs = append(errs, fmt.Errorf("purposes.%s: %w", name, err))
		}
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ui.color_scheme: %w", err))
	}
	if len(errs) > 0 {
		slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func patternStrings(ps []CoordinatePattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
