// SPDX-License-Identifier: MPL-2.0

package project

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/depforge/depforge/internal/cueutil"
	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/depmanager"

	"gopkg.in/yaml.v3"
)

const (
	// CUEManifestName is the CUE manifest looked up in a project directory.
	CUEManifestName = "depforge.project.cue"
	// YAMLManifestName is the YAML manifest looked up in a project directory.
	YAMLManifestName = "depforge.project.yaml"
)

var (
	// ErrManifestNotFound is returned by Find when no manifest exists.
	ErrManifestNotFound = errors.New("project manifest not found")
	// ErrDuplicateModule is returned when two modules share a path.
	ErrDuplicateModule = errors.New("duplicate module path")
	// ErrUnknownProject is returned when a configuration references a module
	// path the manifest does not declare.
	ErrUnknownProject = errors.New("unknown project reference")
	// ErrUnsupportedFormat is returned for manifest extensions other than
	// .cue, .yaml and .yml.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")

	//go:embed project_schema.cue
	projectSchema []byte

	// ManifestNames are searched in order by Find.
	ManifestNames = []string{CUEManifestName, YAMLManifestName, "depforge.project.yml"}
)

type (
	// Project is a loaded manifest.
	Project struct {
		// Path is the manifest file.
		Path    string
		Modules []depmanager.Module
	}

	// ManifestError reports every problem found in one manifest.
	ManifestError struct {
		Path string
		Err  error
	}

	manifest struct {
		Version int          `json:"version,omitempty" yaml:"version"`
		Modules []moduleSpec `json:"modules" yaml:"modules"`
	}

	moduleSpec struct {
		Path           string              `json:"path" yaml:"path"`
		Configurations []configurationSpec `json:"configurations,omitempty" yaml:"configurations"`
	}

	configurationSpec struct {
		Name      string         `json:"name" yaml:"name"`
		Artifacts []artifactSpec `json:"artifacts,omitempty" yaml:"artifacts"`
		Excludes  []excludeSpec  `json:"excludes,omitempty" yaml:"excludes"`
		Projects  []string       `json:"projects,omitempty" yaml:"projects"`
	}

	artifactSpec struct {
		Group        string        `json:"group" yaml:"group"`
		Name         string        `json:"name" yaml:"name"`
		Version      string        `json:"version" yaml:"version"`
		Classifier   string        `json:"classifier,omitempty" yaml:"classifier"`
		File         string        `json:"file" yaml:"file"`
		Sources      string        `json:"sources,omitempty" yaml:"sources"`
		Local        bool          `json:"local,omitempty" yaml:"local"`
		FirstLevel   bool          `json:"first_level,omitempty" yaml:"first_level"`
		SkipPrebuilt bool          `json:"skip_prebuilt,omitempty" yaml:"skip_prebuilt"`
		Excludes     []excludeSpec `json:"excludes,omitempty" yaml:"excludes"`
		Children     []string      `json:"children,omitempty" yaml:"children"`
	}

	excludeSpec struct {
		Group  string `json:"group,omitempty" yaml:"group"`
		Module string `json:"module,omitempty" yaml:"module"`
	}
)

// Error implements the error interface.
func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid project manifest %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying problems.
func (e *ManifestError) Unwrap() error { return e.Err }

// Find returns the first manifest of ManifestNames present in dir.
func Find(dir string) (string, error) {
	for _, name := range ManifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrManifestNotFound, dir)
}

// Load reads and validates the manifest at path.
func Load(ctx context.Context, path string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		m   *manifest
		err error
	)
	switch filepath.Ext(path) {
	case ".cue":
		var res *cueutil.ParseResult[manifest]
		res, err = cueutil.DecodeFile[manifest](projectSchema, path, "#Project")
		if res != nil {
			m = res.Value
		}
	case ".yaml", ".yml":
		m, err = decodeYAML(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	modules, err := m.modules(filepath.Dir(path))
	if err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}
	return &Project{Path: path, Modules: modules}, nil
}

func decodeYAML(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// modules converts the raw manifest, collecting every problem. The YAML path
// has no schema, so identity checks are repeated here for both formats.
func (m *manifest) modules(baseDir string) ([]depmanager.Module, error) {
	var errs []error
	known := make(map[string]bool, len(m.Modules))
	for _, ms := range m.Modules {
		if known[ms.Path] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateModule, ms.Path))
		}
		known[ms.Path] = true
	}

	out := make([]depmanager.Module, 0, len(m.Modules))
	for i, ms := range m.Modules {
		if ms.Path == "" {
			errs = append(errs, fmt.Errorf("modules[%d]: path is required", i))
			continue
		}
		mod := depmanager.Module{Path: ms.Path}
		for j, cs := range ms.Configurations {
			field := fmt.Sprintf("modules[%d].configurations[%d]", i, j)
			cfg, cfgErrs := cs.configuration(field, baseDir, known)
			errs = append(errs, cfgErrs...)
			mod.Configurations = append(mod.Configurations, cfg)
		}
		out = append(out, mod)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (cs configurationSpec) configuration(field, baseDir string, known map[string]bool) (depcache.Configuration, []error) {
	var errs []error
	cfg := depcache.Configuration{
		Name:     cs.Name,
		Excludes: excludeRules(cs.Excludes),
		Projects: cs.Projects,
	}
	if cs.Name == "" {
		errs = append(errs, fmt.Errorf("%s: name is required", field))
	}
	for _, p := range cs.Projects {
		if !known[p] {
			errs = append(errs, fmt.Errorf("%s.projects: %w: %s", field, ErrUnknownProject, p))
		}
	}
	for k, as := range cs.Artifacts {
		a, err := as.artifact(baseDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.artifacts[%d]: %w", field, k, err))
			continue
		}
		cfg.Artifacts = append(cfg.Artifacts, a)
	}
	return cfg, errs
}

func (as artifactSpec) artifact(baseDir string) (depcache.Artifact, error) {
	coords := dependency.Coordinates{
		Identity: dependency.Identity{Group: as.Group, Name: as.Name, Classifier: as.Classifier},
		Version:  dependency.Version(as.Version),
	}
	if err := coords.Validate(); err != nil {
		return depcache.Artifact{}, err
	}
	if as.File == "" {
		return depcache.Artifact{}, errors.New("file is required")
	}

	a := depcache.Artifact{
		Coordinates:  coords,
		File:         resolve(baseDir, as.File),
		SourceFile:   resolve(baseDir, as.Sources),
		ProjectLocal: as.Local,
		FirstLevel:   as.FirstLevel,
		SkipPrebuilt: as.SkipPrebuilt,
		Excludes:     excludeRules(as.Excludes),
	}
	for _, child := range as.Children {
		c, err := dependency.ParseCoordinates(child)
		if err != nil {
			return depcache.Artifact{}, fmt.Errorf("children: %w", err)
		}
		a.Children = append(a.Children, c)
	}
	return a, nil
}

func excludeRules(specs []excludeSpec) []dependency.ExcludeRule {
	if len(specs) == 0 {
		return nil
	}
	rules := make([]dependency.ExcludeRule, len(specs))
	for i, s := range specs {
		rules[i] = dependency.ExcludeRule{Group: s.Group, Module: s.Module}
	}
	return rules
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
