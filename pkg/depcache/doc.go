// SPDX-License-Identifier: MPL-2.0

// Package depcache is the per-cache-root façade over resolved artifacts. It
// turns a module configuration's resolved artifacts into dependency requests
// and answers archive metadata questions (annotation processors, extension
// markers, lint side-artifacts, sources) with a per-pass memo.
package depcache
