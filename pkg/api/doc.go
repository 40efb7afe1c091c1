// Package api defines the public contracts of the relcut release engine:
// the release data model, the collaborator interfaces the engine drives,
// the fatal error taxonomy, and the Observer used for logging and metrics.
//
// Most applications import the root relcut package, which re-exports the
// types defined here; api exists so lower-level integrations (custom
// collaborators, custom observers, journal implementations) have a stable
// dependency surface without pulling in engine internals.
//
// # Collaborators
//
// The engine owns decision logic only. Every side effect is delegated to a
// collaborator interface:
//
//   - SourceHost: branch create/push/merge/delete and commit resolution
//   - VersionParser: semantic-version decomposition
//   - MetadataStore: read/rewrite the declared package version
//   - ChangelogTool: changelog path resolution and fragment merging
//   - TestRunner: per-cell suite execution for the verification gate
//
// Implementations should accept a context on anything that blocks and
// return errors from the taxonomy in errors.go where the contract calls
// for it.
//
// # Error taxonomy
//
// ParseError, GeneratorError, TestFailureError and MergeConflictError are
// all fatal: the run transitions to StateAborted and already-pushed scratch
// commits are left for manual cleanup. Classification helpers (IsParseError
// and friends) work through errors.As, so wrapping is fine.
package api
