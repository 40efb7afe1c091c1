package api

import (
	"context"
)

// Version is a decomposed semantic version.
type Version struct {
	// Base is the MAJOR.MINOR.PATCH core, e.g. "1.9.0".
	Base string

	// Prerelease is the optional prerelease tag, e.g. "rc1". Empty for
	// final releases.
	Prerelease string
}

// IsPrerelease reports whether v carries a prerelease tag.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// String renders the version in dashed form, e.g. "1.9.0-rc1".
func (v Version) String() string {
	if v.Prerelease == "" {
		return v.Base
	}
	return v.Base + "-" + v.Prerelease
}

// VersionParser decomposes a raw version string.
// A malformed input must return an error satisfying IsParseError.
type VersionParser interface {
	Parse(raw string) (Version, error)
}

// SourceHost is the source-control collaborator. Implementations are
// expected to operate against a single repository; branch-namespace
// exclusivity is guaranteed by the run-unique scratch branch name, so no
// locking is required.
type SourceHost interface {
	// HeadSHA resolves a ref to its current commit identifier.
	HeadSHA(ctx context.Context, ref string) (string, error)

	// CreateBranch creates branch name from fromRef and pushes it.
	// Re-invocation with the same name is assumed not to occur; a push
	// conflict is fatal to the run.
	CreateBranch(ctx context.Context, name, fromRef string) error

	// Commit stages all pending working-tree changes on branch and commits
	// them with the given message, returning the new commit SHA.
	Commit(ctx context.Context, branch, message string) (string, error)

	// Push publishes local commits on branch to the remote.
	Push(ctx context.Context, branch string) error

	// Merge merges branch from into branch into using a fast-forward-safe
	// strategy and returns the resulting HEAD of into. A conflict must
	// return an error satisfying IsMergeConflict.
	Merge(ctx context.Context, from, into string) (string, error)

	// DeleteBranch removes the branch locally and on the remote.
	DeleteBranch(ctx context.Context, name string) error
}

// MetadataStore reads and rewrites the package's declared version in
// project metadata.
type MetadataStore interface {
	CurrentVersion(ctx context.Context) (string, error)
	SetVersion(ctx context.Context, version string) error
}

// GenerationMode selects how pending changelog fragments are folded into
// the versioned changelog file.
type GenerationMode string

const (
	// ModePrerelease moves the pending fragments into a prerelease-tagged
	// changelog file.
	ModePrerelease GenerationMode = "prerelease"

	// ModeFinalWithPrereleases folds the pending fragments together with
	// all existing prerelease files for the same base version into the
	// final file, removing the prerelease files.
	ModeFinalWithPrereleases GenerationMode = "final-with-prereleases"

	// ModeCleanFinal folds the pending fragments into the final file when
	// no prereleases exist for the base version.
	ModeCleanFinal GenerationMode = "clean-final"
)

// ChangelogTool is the changelog-fragment-merging collaborator.
type ChangelogTool interface {
	// Path computes the changelog location for v without touching the
	// filesystem.
	Path(v Version) string

	// Exists reports whether the changelog file for v is already present.
	Exists(v Version) (bool, error)

	// ExistingPrereleases lists prerelease changelog files already written
	// for v's base version. Used to pick the generation mode for final
	// releases.
	ExistingPrereleases(v Version) ([]string, error)

	// Generate merges the pending fragment files into the changelog file
	// for v according to mode and returns the written path. Callers verify
	// the file exists afterwards; a missing file is a GeneratorError.
	Generate(ctx context.Context, v Version, mode GenerationMode) (string, error)
}

// Suite identifies a test suite run by the verification gate.
type Suite string

const (
	SuiteUnit        Suite = "unit"
	SuiteIntegration Suite = "integration"
)

// MatrixCell is one independent verification fan-out unit, an
// OS / runtime-version combination.
type MatrixCell struct {
	OS      string
	Runtime string
}

func (c MatrixCell) String() string {
	return c.OS + "/" + c.Runtime
}

// CaseResult is a single test case outcome reported by a TestRunner.
type CaseResult struct {
	Name    string
	Cell    MatrixCell
	Passed  bool
	Skipped bool

	// Flaky marks a case tagged as known to fail intermittently. Flaky
	// failures are recorded but never block promotion.
	Flaky bool

	Output string
}

// CellRequest asks a TestRunner to execute one suite within one matrix cell.
type CellRequest struct {
	Suite Suite
	Cell  MatrixCell

	// Ref is the branch the suite runs against.
	Ref string

	// FlakyOnly restricts execution to flaky-tagged cases.
	FlakyOnly bool

	// ExcludeFlaky skips flaky-tagged cases.
	ExcludeFlaky bool
}

// TestRunner is the test-execution collaborator. The verification gate
// handles matrix fan-out and pass ordering; runners only execute a single
// cell.
type TestRunner interface {
	RunCell(ctx context.Context, req CellRequest) ([]CaseResult, error)
}
