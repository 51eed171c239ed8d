// SPDX-License-Identifier: MPL-2.0

// Package scope derives the per-purpose dependency sets of a module from its
// configuration memberships.
//
// For each purpose the derived sets are:
//
//	implementation = (runtime ∩ compile) − api
//	api            = api ∩ runtime
//	provided       = compile − runtime
//
// computed independently for external (artifact) and internal (module)
// dependencies. Members of the purpose's exclusion configuration are removed
// from every derived set. Runtime-only dependencies appear in none of them.
package scope

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/depforge/depforge/pkg/dependency"
)

const (
	// PurposeMain is the production code of a module.
	PurposeMain Purpose = "main"
	// PurposeTest is the unit test code of a module.
	PurposeTest Purpose = "test"
	// PurposeIntegrationTest is the integration test code of a module.
	PurposeIntegrationTest Purpose = "integration_test"
	// PurposeAnnotationProcessor is the annotation processing classpath of a module.
	PurposeAnnotationProcessor Purpose = "annotation_processor"
)

// ErrInvalidPurpose is returned for an unknown purpose name.
var ErrInvalidPurpose = errors.New("invalid scope purpose")

type (
	// Purpose names the kind of source set a scope describes.
	Purpose string

	// Membership names the configurations feeding one purpose. Empty names
	// are treated as empty configurations.
	Membership struct {
		Runtime string `mapstructure:"runtime" json:"runtime"`
		Compile string `mapstructure:"compile" json:"compile"`
		API     string `mapstructure:"api" json:"api"`
		Exclude string `mapstructure:"exclude" json:"exclude"`
	}

	// Scope holds the derived dependency sets of one module purpose. It is
	// immutable once built.
	Scope struct {
		module  string
		purpose Purpose

		implementation []dependency.Request
		api            []dependency.Request
		provided       []dependency.Request

		internalImplementation []string
		internalAPI            []string
		internalProvided       []string
	}
)

// Purposes lists every purpose in a stable order.
func Purposes() []Purpose {
	return []Purpose{PurposeMain, PurposeTest, PurposeIntegrationTest, PurposeAnnotationProcessor}
}

// ParsePurpose validates a purpose name.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if !slices.Contains(Purposes(), p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
	return p, nil
}

// DefaultMemberships returns the Gradle-style configuration names for each purpose.
func DefaultMemberships() map[Purpose]Membership {
	return map[Purpose]Membership{
		PurposeMain: {
			Runtime: "runtimeClasspath",
			Compile: "compileClasspath",
			API:     "api",
		},
		PurposeTest: {
			Runtime: "testRuntimeClasspath",
			Compile: "testCompileClasspath",
		},
		PurposeIntegrationTest: {
			Runtime: "integrationTestRuntimeClasspath",
			Compile: "integrationTestCompileClasspath",
		},
		PurposeAnnotationProcessor: {
			Runtime: "annotationProcessor",
			Compile: "annotationProcessor",
		},
	}
}

// Module returns the module path the scope belongs to.
func (s *Scope) Module() string { return s.module }

// Purpose returns the scope's purpose.
func (s *Scope) Purpose() Purpose { return s.purpose }

// Implementation returns external dependencies needed to compile and run but
// not re-exported.
func (s *Scope) Implementation() []dependency.Request { return slices.Clone(s.implementation) }

// API returns external dependencies re-exported to consumers.
func (s *Scope) API() []dependency.Request { return slices.Clone(s.api) }

// Provided returns external dependencies needed only at compile time.
func (s *Scope) Provided() []dependency.Request { return slices.Clone(s.provided) }

// Exported returns the API set when exported is true and the implementation
// set otherwise.
func (s *Scope) Exported(exported bool) []dependency.Request {
	if exported {
		return s.API()
	}
	return s.Implementation()
}

// External returns every external dependency of the scope.
func (s *Scope) External() []dependency.Request {
	out := slices.Concat(s.implementation, s.api, s.provided)
	sortRequests(out)
	return out
}

// InternalImplementation returns internal module dependencies not re-exported.
func (s *Scope) InternalImplementation() []string { return slices.Clone(s.internalImplementation) }

// InternalAPI returns internal module dependencies re-exported to consumers.
func (s *Scope) InternalAPI() []string { return slices.Clone(s.internalAPI) }

// InternalProvided returns compile-only internal module dependencies.
func (s *Scope) InternalProvided() []string { return slices.Clone(s.internalProvided) }

// Internal returns every internal module dependency of the scope.
func (s *Scope) Internal() []string {
	out := slices.Concat(s.internalImplementation, s.internalAPI, s.internalProvided)
	slices.Sort(out)
	return slices.Compact(out)
}

// Derive applies the scope algebra to four membership sets. Keys present in
// excluded are dropped from every result. Results are in the order of r for
// implementation and api, and of c for provided.
func Derive[K comparable](r, c, a, excluded []K) (implementation, api, provided []K) {
	rs, cs, as, es := toSet(r), toSet(c), toSet(a), toSet(excluded)

	for _, k := range dedupe(r) {
		if es[k] {
			continue
		}
		switch {
		case as[k]:
			api = append(api, k)
		case cs[k]:
			implementation = append(implementation, k)
		}
	}
	for _, k := range dedupe(c) {
		if !rs[k] && !es[k] {
			provided = append(provided, k)
		}
	}
	return implementation, api, provided
}

func toSet[K comparable](keys []K) map[K]bool {
	m := make(map[K]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func dedupe[K comparable](keys []K) []K {
	seen := make(map[K]bool, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func sortRequests(reqs []dependency.Request) {
	slices.SortFunc(reqs, func(a, b dependency.Request) int {
		return cmp.Or(
			dependency.CompareIdentity(a.Identity, b.Identity),
			cmp.Compare(a.Version, b.Version),
		)
	})
}
