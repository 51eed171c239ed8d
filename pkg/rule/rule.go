// SPDX-License-Identifier: MPL-2.0

// Package rule defines the descriptors handed to build-rule generators for
// each materialized cache directory, and the emitters that deliver them.
package rule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const (
	// KindLocalPrebuilt references a locally built artifact in place.
	KindLocalPrebuilt Kind = "local_prebuilt"
	// KindRemotePrebuilt wraps a fetched artifact as a prebuilt library.
	KindRemotePrebuilt Kind = "remote_prebuilt"
	// KindHTTPFile fetches a remote artifact verified by its checksum.
	KindHTTPFile Kind = "http_file"
	// KindAnnotationProcessor declares an annotation processor group.
	KindAnnotationProcessor Kind = "annotation_processor"

	// DefaultManifestName is the file ManifestEmitter writes into each directory.
	DefaultManifestName = "rules.toml"
)

// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
var ErrInvalidKind = errors.New("invalid rule kind")

type (
	// Kind is the type of rule a descriptor asks the generator to emit.
	Kind string

	// InvalidKindError is returned when a Kind value is unknown.
	InvalidKindError struct {
		Value Kind
	}

	// Descriptor is one build rule to be generated in a cache directory.
	Descriptor struct {
		Kind Kind `toml:"kind"`
		Name string `toml:"name"`
		// DependencyRef is the coordinates of the dependency the rule wraps.
		DependencyRef string `toml:"dependency"`
		SHA256        string `toml:"sha256,omitempty"`
		// SourceRef is the file name of the sources archive, if any.
		SourceRef string `toml:"source,omitempty"`
		// File is the cache-relative file name the rule points at.
		File string `toml:"file,omitempty"`
		// Deps are rule names this rule depends on.
		Deps       []string `toml:"deps,omitempty"`
		Processors []string `toml:"processors,omitempty"`
		Lint       string   `toml:"lint,omitempty"`
	}

	// Directory is one cache directory handed to an Emitter. Files are
	// written into Stage; the directory is published at Path once every
	// directory of the pass has been staged.
	Directory struct {
		Path  string
		Stage string
	}

	// Emitter delivers the descriptors of one cache directory to a rule generator.
	Emitter interface {
		Emit(ctx context.Context, dir Directory, rules []Descriptor) error
	}

	// Manifest is the on-disk form written by ManifestEmitter.
	Manifest struct {
		Rules []Descriptor `toml:"rule"`
	}

	// ManifestEmitter writes each directory's descriptors as a TOML manifest
	// inside that directory.
	ManifestEmitter struct {
		FileName string
	}

	// MemoryEmitter records emitted descriptors by directory.
	MemoryEmitter struct {
		mu    sync.Mutex
		rules map[string][]Descriptor
		order []string
	}
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid rule kind %q", e.Value)
}

// Unwrap returns ErrInvalidKind.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// String returns the kind name.
func (k Kind) String() string { return string(k) }

// IsValid returns whether the kind is known.
func (k Kind) IsValid() (bool, []error) {
	switch k {
	case KindLocalPrebuilt, KindRemotePrebuilt, KindHTTPFile, KindAnnotationProcessor:
		return true, nil
	default:
		return false, []error{&InvalidKindError{Value: k}}
	}
}

// Validate checks that the descriptor can be rendered.
func (d Descriptor) Validate() error {
	var errs []error
	if ok, kindErrs := d.Kind.IsValid(); !ok {
		errs = append(errs, kindErrs...)
	}
	if d.Name == "" {
		errs = append(errs, fmt.Errorf("rule of kind %s has no name", d.Kind))
	}
	if d.Kind == KindHTTPFile && d.SHA256 == "" {
		errs = append(errs, fmt.Errorf("http_file rule %s has no sha256", d.Name))
	}
	return errors.Join(errs...)
}

// WriteDir returns the directory emitted files belong in: Stage when set,
// else Path.
func (d Directory) WriteDir() string {
	if d.Stage != "" {
		return d.Stage
	}
	return d.Path
}

// Emit writes FileName into the directory's write location atomically.
func (e ManifestEmitter) Emit(ctx context.Context, dir Directory, rules []Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("refusing to emit %s: %w", dir.Path, err)
		}
	}

	data, err := toml.Marshal(Manifest{Rules: rules})
	if err != nil {
		return fmt.Errorf("failed to encode rule manifest: %w", err)
	}

	path := filepath.Join(dir.WriteDir(), e.fileName())
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rule manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename rule manifest: %w", err)
	}
	return nil
}

func (e ManifestEmitter) fileName() string {
	if e.FileName == "" {
		return DefaultManifestName
	}
	return e.FileName
}

// ReadManifest decodes a manifest written by ManifestEmitter.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse rule manifest %s: %w", path, err)
	}
	return &m, nil
}

// NewMemoryEmitter returns an empty MemoryEmitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{rules: make(map[string][]Descriptor)}
}

// Emit records rules under the directory's published path, replacing any
// earlier emission for it.
func (e *MemoryEmitter) Emit(_ context.Context, dir Directory, rules []Descriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[dir.Path]; !ok {
		e.order = append(e.order, dir.Path)
	}
	e.rules[dir.Path] = slices.Clone(rules)
	return nil
}

// Dirs returns the directories emitted so far, sorted.
func (e *MemoryEmitter) Dirs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	dirs := slices.Clone(e.order)
	slices.Sort(dirs)
	return dirs
}

// Rules returns the descriptors emitted for dir.
func (e *MemoryEmitter) Rules(dir string) []Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.rules[dir])
}

// Find returns the first descriptor in any directory with the given kind and name.
func (e *MemoryEmitter) Find(kind Kind, name string) (Descriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dir := range e.order {
		for _, d := range e.rules[dir] {
			if d.Kind == kind && strings.EqualFold(d.Name, name) {
				return d, true
			}
		}
	}
	return Descriptor{}, false
}
