// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/depforge/depforge/pkg/dependency"
)

var (
	// ErrVersionPolicy is the sentinel error wrapped by VersionPolicyError.
	ErrVersionPolicy = errors.New("version policy violated")
	// ErrAmbiguousChildren is the sentinel error wrapped by AmbiguousChildrenError.
	ErrAmbiguousChildren = errors.New("ambiguous dependency versions")
	// ErrMissingChild is the sentinel error wrapped by MissingChildError.
	ErrMissingChild = errors.New("child dependency has no canonical record")
	// ErrUnresolvedConflict is returned when a VersionResolver does not answer
	// every conflict it was given.
	ErrUnresolvedConflict = errors.New("version conflict left unresolved")
	// ErrNoModules is returned when a pass is started without modules.
	ErrNoModules = errors.New("no modules to resolve")
)

type (
	// PolicyViolation is one identity that breaks the versionless policy.
	PolicyViolation struct {
		Identity dependency.Identity
		Versions []dependency.Version
		// AllowListed is true when the identity is allow-listed but resolved
		// to a single version, so its allow-list entry is stale.
		AllowListed bool
	}

	// VersionPolicyError aggregates every versionless policy violation of a pass.
	VersionPolicyError struct {
		Violations []PolicyViolation
	}

	// AmbiguousChildrenError is returned when children would have to be
	// assigned to, or resolved through, an identity with several canonical versions.
	AmbiguousChildrenError struct {
		Identity dependency.Identity
		Versions []dependency.Version
		// Parent is set when the ambiguous identity was reached as a child.
		Parent *dependency.Coordinates
	}

	// MissingChildError is returned when a graph child has no canonical record.
	MissingChildError struct {
		Parent dependency.Coordinates
		Child  dependency.Coordinates
	}

	// ModuleError attributes a collection failure to a module.
	ModuleError struct {
		Module string
		Err    error
	}
)

// Error implements the error interface.
func (e *VersionPolicyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d version policy violation(s):", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  ")
		if v.AllowListed {
			fmt.Fprintf(&b, "%s is allow-listed for multiple versions but resolved to %s", v.Identity, joinVersions(v.Versions))
		} else {
			fmt.Fprintf(&b, "%s has multiple versions: %s", v.Identity, joinVersions(v.Versions))
		}
	}
	return b.String()
}

// Unwrap returns ErrVersionPolicy.
func (e *VersionPolicyError) Unwrap() error { return ErrVersionPolicy }

// Error implements the error interface.
func (e *AmbiguousChildrenError) Error() string {
	if e.Parent != nil {
		return fmt.Sprintf("child %s of %s resolves to multiple versions (%s)",
			e.Identity, e.Parent, joinVersions(e.Versions))
	}
	return fmt.Sprintf("cannot assign children to %s: it has multiple versions (%s)",
		e.Identity, joinVersions(e.Versions))
}

// Unwrap returns ErrAmbiguousChildren.
func (e *AmbiguousChildrenError) Unwrap() error { return ErrAmbiguousChildren }

// Error implements the error interface.
func (e *MissingChildError) Error() string {
	return fmt.Sprintf("child %s of %s was not collected from any module", e.Child, e.Parent)
}

// Unwrap returns ErrMissingChild.
func (e *MissingChildError) Unwrap() error { return ErrMissingChild }

// Error implements the error interface.
func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ModuleError) Unwrap() error { return e.Err }

func joinVersions(vs []dependency.Version) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
