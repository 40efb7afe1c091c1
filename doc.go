// Package relcut prepares and promotes software releases from a git
// working tree.
//
// Relcut takes a release request (version, source branch, target branch)
// and drives it through a fixed decision pipeline: audit the requested
// version and changelog, materialize a scratch branch when anything needs
// fixing, generate the missing changelog and version bump, verify the
// branch against a test matrix, and finally merge it back or retain it
// for inspection. It runs fully in-process and integrates cleanly into
// existing release tooling.
//
// # Core Concepts
//
// The relcut programming model is intentionally small:
//
//  1. Engine
//  2. ReleasePlan
//  3. Collaborators
//  4. LocalRunner
//  5. Journal
//
// # Engine
//
// The Engine executes release runs and records their state. Each run is a
// walk through a fixed state machine:
//
//	START -> AUDITED -> BRANCHED -> MUTATED -> VERIFIED -> PROMOTED -> RESOLVED
//	                \-> SKIPPED ----------------------------------/-> RETAINED
//
// A run that passes both audits skips straight to SKIPPED and resolves
// with the commit it was requested against. A run that needed work ends
// PROMOTED (merged into the target) or RETAINED (trial run, scratch
// branch kept). Any fatal error aborts the run with a classified error.
//
// Engines can keep run records in memory (best for tests) or journal them
// in SQLite for inspection across processes.
//
// # ReleasePlan
//
// A ReleasePlan names the collaborators and verification settings a run
// uses. Plans are assembled with PlanBuilder:
//
//	plan := relcut.NewPlan().
//	    Host(host).
//	    Versions(parser).
//	    Metadata(store).
//	    Changelog(tool).
//	    Tests(runner).
//	    MustBuild()
//
// # Collaborators
//
// Runs act on the outside world only through small interfaces defined in
// pkg/api: SourceHost (branches, commits, merges), VersionParser,
// MetadataStore (current version), ChangelogTool (changelog files), and
// TestRunner (one matrix cell at a time). Default implementations cover a
// local git working tree; tests substitute fakes.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory Engine with the default collaborators
// for a local working tree. It is the fastest way to run releases during
// development:
//
//	runner := relcut.NewLocalRunner(relcut.LocalRunnerConfig{Dir: "."})
//	run, err := runner.Prepare(ctx, req)
//
// # Journal
//
// Journal reads the run records and events a SQLite-backed Engine wrote,
// without needing a plan. The relcut CLI uses it for `relcut runs`.
//
// For examples, see the /examples directory or the project README.
package relcut
