// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes CUE documents against an embedded schema.
//
// Both the depforge configuration file and the exported project manifest go
// through the same flow: compile the schema, compile the document, unify it
// with the schema's root definition, validate, then decode into a Go struct.
//
//	//go:embed project_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[manifest](schema, data, "#Project",
//		cueutil.WithFilename("depforge.project.cue"))
//
// Validation failures are reported with JSON-path style field locations, for
// example "modules[0].configurations.api.artifacts[3].version".
package cueutil
