// SPDX-License-Identifier: MPL-2.0

// Package depmanager consolidates the dependencies of every module of a
// project into one canonical, deduplicated table and materializes it into a
// content-addressed cache root.
//
// A pass runs these phases in order:
//
//  1. Collect: every module is processed by a bounded pool of workers, each
//     extracting the module's configurations and deriving its scopes into a
//     private buffer. Buffers are merged single-threaded.
//  2. First-level propagation (optional).
//  3. Consolidate: identities with several versions are handed to a
//     VersionResolver in one batch when the use-latest policy applies.
//  4. Validate: the versionless policy reports all violations at once.
//  5. Reconcile children against the canonical table.
//  6. Materialize: each group directory is recreated, dependencies are
//     symlinked into it, and its rules are emitted.
//  7. Persist the checksum cache, even if an earlier phase failed.
package depmanager
