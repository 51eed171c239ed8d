// SPDX-License-Identifier: MPL-2.0

// Package dependency defines the value types shared by the resolution engine:
// identities, versions, coordinates, packaging, exclude rules, per-module
// observations (Request), and the canonical records (Dependency) produced by a
// resolution pass.
//
// Canonical records are assembled through a Builder owned by the dependency
// manager and become immutable once built. Children are stored as identity
// keys into the canonical table rather than as pointers, so records can be
// compared, sorted, and serialized without walking a graph.
package dependency
