// SPDX-License-Identifier: MPL-2.0

// Package config handles depforge configuration using Viper with CUE as the
// file format.
//
// Configuration is read from depforge.cue in the project directory, or from
// the file named with --config. The file is validated against an embedded CUE
// schema (config_schema.cue) before it is merged over the built-in defaults.
// Every key can be overridden from the environment with the DEPFORGE_ prefix,
// dots replaced by underscores (DEPFORGE_POLICY_USE_LATEST=true).
package config
