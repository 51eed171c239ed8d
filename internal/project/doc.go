// SPDX-License-Identifier: MPL-2.0

// Package project loads the project manifest that a build exports for
// depforge: every module, its configurations, and the artifacts each
// configuration resolved to.
//
// Manifests are CUE (depforge.project.cue, validated against the embedded
// #Project schema) or YAML (depforge.project.yaml). Both share one shape:
//
//	modules: [{
//		path: ":app"
//		configurations: [{
//			name: "runtimeClasspath"
//			projects: [":lib"]
//			artifacts: [{
//				group:       "com.google.guava"
//				name:        "guava"
//				version:     "33.0.0-jre"
//				file:        "caches/guava-33.0.0-jre.jar"
//				first_level: true
//				children: ["com.google.guava:failureaccess:1.0.2"]
//			}]
//		}]
//	}]
//
// Relative artifact paths resolve against the manifest's directory.
package project
