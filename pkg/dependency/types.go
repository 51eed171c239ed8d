// SPDX-License-Identifier: MPL-2.0

package dependency

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// PackagingJAR is a plain Java archive.
	PackagingJAR Packaging = "jar"
	// PackagingAAR is an Android archive.
	PackagingAAR Packaging = "aar"
	// PackagingPEX is a self-contained Python executable archive.
	PackagingPEX Packaging = "pex"
)

const (
	// KindRemote marks a dependency fetched from a registry.
	KindRemote Kind = iota
	// KindLocal marks a dependency built inside the project or outside any registry cache.
	KindLocal
)

// ErrInvalidPackaging is the sentinel error wrapped by InvalidPackagingError.
var ErrInvalidPackaging = errors.New("invalid packaging")

type (
	// Packaging is the archive format of a cached artifact.
	Packaging string

	// Kind distinguishes local from remote artifacts. Local artifacts are
	// referenced directly; remote ones carry a content checksum.
	Kind int

	// InvalidPackagingError is returned when a Packaging value is unknown.
	InvalidPackagingError struct {
		Value Packaging
	}

	// ExcludeRule removes matching children from a dependency's child set.
	// A rule with only Group set matches every module of that group; a rule
	// with only Module set matches that module name in any group.
	ExcludeRule struct {
		Group  string
		Module string
	}
)

// Error implements the error interface.
func (e *InvalidPackagingError) Error() string {
	return fmt.Sprintf("invalid packaging %q (valid: jar, aar, pex)", e.Value)
}

// Unwrap returns ErrInvalidPackaging.
func (e *InvalidPackagingError) Unwrap() error { return ErrInvalidPackaging }

// String returns the packaging as a file extension without the dot.
func (p Packaging) String() string { return string(p) }

// IsValid returns whether the packaging is one of the known formats.
func (p Packaging) IsValid() (bool, []error) {
	switch p {
	case PackagingJAR, PackagingAAR, PackagingPEX:
		return true, nil
	default:
		return false, []error{&InvalidPackagingError{Value: p}}
	}
}

// PackagingFromFile derives the packaging from a file extension.
// ok is false for any extension that is not an accepted archive format.
func PackagingFromFile(path string) (Packaging, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	p := Packaging(ext)
	if valid, _ := p.IsValid(); !valid {
		return "", false
	}
	return p, true
}

// String returns "local" or "remote".
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Matches reports whether the rule excludes id. An empty rule matches nothing.
func (r ExcludeRule) Matches(id Identity) bool {
	switch {
	case r.Group == "" && r.Module == "":
		return false
	case r.Group == "":
		return r.Module == id.Name
	case r.Module == "":
		return r.Group == id.Group
	default:
		return r.Group == id.Group && r.Module == id.Name
	}
}

// String returns "group:module" with "*" for an unset side.
func (r ExcludeRule) String() string {
	g, m := r.Group, r.Module
	if g == "" {
		g = "*"
	}
	if m == "" {
		m = "*"
	}
	return g + ":" + m
}

// Excluded reports whether any rule in rules matches id.
func Excluded(rules []ExcludeRule, id Identity) bool {
	for _, r := range rules {
		if r.Matches(id) {
			return true
		}
	}
	return false
}
