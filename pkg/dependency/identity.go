// SPDX-License-Identifier: MPL-2.0

package dependency

import (
	"errors"
	"fmt"
	"strings"
)

const (
	snapshotSuffix = "-SNAPSHOT"
	localSuffix    = "-LOCAL"
)

var (
	// ErrInvalidIdentity is the sentinel error wrapped by InvalidIdentityError.
	ErrInvalidIdentity = errors.New("invalid dependency identity")
	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid dependency version")
	// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
	ErrInvalidCoordinates = errors.New("invalid dependency coordinates")
)

type (
	// Identity identifies a dependency independently of its version.
	// Two dependencies with the same group, name and classifier are the same
	// identity even when their versions differ.
	Identity struct {
		Group      string
		Name       string
		Classifier string
	}

	// Version is a dependency version string as declared by the build.
	Version string

	// Coordinates pins an identity to one version.
	Coordinates struct {
		Identity
		Version Version
	}

	// InvalidIdentityError is returned when an Identity fails validation.
	InvalidIdentityError struct {
		Value  string
		Reason string
	}

	// InvalidVersionError is returned when a Version fails validation.
	InvalidVersionError struct {
		Value Version
	}
)

// Error implements the error interface.
func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid dependency identity %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidIdentity.
func (e *InvalidIdentityError) Unwrap() error { return ErrInvalidIdentity }

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid dependency version %q (must be non-empty without whitespace)", e.Value)
}

// Unwrap returns ErrInvalidVersion.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// NewIdentity returns an Identity without a classifier.
func NewIdentity(group, name string) Identity {
	return Identity{Group: group, Name: name}
}

// String returns "group:name" or "group:name:classifier".
func (id Identity) String() string {
	if id.Classifier == "" {
		return id.Group + ":" + id.Name
	}
	return id.Group + ":" + id.Name + ":" + id.Classifier
}

// GroupPath returns the group as a relative directory path ("com.foo" -> "com/foo").
func (id Identity) GroupPath() string {
	return strings.ReplaceAll(id.Group, ".", "/")
}

// Validate returns an error if the identity cannot name a cached artifact.
func (id Identity) Validate() error {
	switch {
	case id.Group == "":
		return &InvalidIdentityError{Value: id.String(), Reason: "group is empty"}
	case id.Name == "":
		return &InvalidIdentityError{Value: id.String(), Reason: "name is empty"}
	case strings.ContainsAny(id.Group+id.Name+id.Classifier, ": \t\n/\\"):
		return &InvalidIdentityError{Value: id.String(), Reason: "contains a separator or whitespace"}
	}
	return nil
}

// Matches reports whether the identity matches a "group:name" or "group:*"
// pattern. Classifiers are ignored.
func (id Identity) Matches(pattern string) bool {
	group, name, ok := strings.Cut(pattern, ":")
	if !ok || group != id.Group {
		return false
	}
	return name == "*" || name == id.Name
}

// ParseIdentity parses "group:name" or "group:name:classifier".
func ParseIdentity(s string) (Identity, error) {
	parts := strings.Split(s, ":")
	var id Identity
	switch len(parts) {
	case 2:
		id = Identity{Group: parts[0], Name: parts[1]}
	case 3:
		id = Identity{Group: parts[0], Name: parts[1], Classifier: parts[2]}
	default:
		return Identity{}, &InvalidIdentityError{Value: s, Reason: "expected group:name[:classifier]"}
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// String returns the version as a string.
func (v Version) String() string { return string(v) }

// Validate returns an error if the version is empty or contains whitespace.
func (v Version) Validate() error {
	if v == "" || strings.ContainsAny(string(v), " \t\n\r") {
		return &InvalidVersionError{Value: v}
	}
	return nil
}

// IsSnapshot reports whether the version carries a snapshot or local-build suffix.
func (v Version) IsSnapshot() bool {
	return strings.HasSuffix(string(v), snapshotSuffix) || strings.HasSuffix(string(v), localSuffix)
}

// NewCoordinates pins id to version.
func NewCoordinates(id Identity, version Version) Coordinates {
	return Coordinates{Identity: id, Version: version}
}

// String returns "group:name:version" or "group:name:version:classifier".
func (c Coordinates) String() string {
	s := c.Group + ":" + c.Name + ":" + string(c.Version)
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	return s
}

// CacheName returns the file stem used inside a cache directory:
// "name--version" or "name--version--classifier".
func (c Coordinates) CacheName() string {
	s := c.Name + "--" + string(c.Version)
	if c.Classifier != "" {
		s += "--" + c.Classifier
	}
	return s
}

// Triple returns "group-name-version", the form used in processor UIDs.
func (c Coordinates) Triple() string {
	s := c.Group + "-" + c.Name + "-" + string(c.Version)
	if c.Classifier != "" {
		s += "-" + c.Classifier
	}
	return s
}

// Validate checks both the identity and the version.
func (c Coordinates) Validate() error {
	return errors.Join(c.Identity.Validate(), c.Version.Validate())
}

// ParseCoordinates parses "group:name:version" or "group:name:version:classifier".
func ParseCoordinates(s string) (Coordinates, error) {
	parts := strings.Split(s, ":")
	var c Coordinates
	switch len(parts) {
	case 3:
		c = Coordinates{Identity: Identity{Group: parts[0], Name: parts[1]}, Version: Version(parts[2])}
	case 4:
		c = Coordinates{Identity: Identity{Group: parts[0], Name: parts[1], Classifier: parts[3]}, Version: Version(parts[2])}
	default:
		return Coordinates{}, fmt.Errorf("%w: %q (expected group:name:version[:classifier])", ErrInvalidCoordinates, s)
	}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}
