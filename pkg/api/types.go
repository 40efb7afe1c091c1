package api

import (
	"time"
)

// State is the lifecycle state of a release run.
type State string

const (
	// StateStart is the initial state of every run.
	StateStart State = "START"

	// StateAudited means both the version audit and the changelog audit
	// have been computed.
	StateAudited State = "AUDITED"

	// StateBranched means a scratch branch was created and pushed.
	StateBranched State = "BRANCHED"

	// StateMutated means the pending changelog / version-bump mutations
	// have been committed to the scratch branch.
	StateMutated State = "MUTATED"

	// StateVerified means the verification gate passed.
	StateVerified State = "VERIFIED"

	// StatePromoted means the scratch branch was merged into the target
	// branch and deleted.
	StatePromoted State = "PROMOTED"

	// StateRetained means this was a trial run: the scratch branch is kept
	// as the release source instead of being merged.
	StateRetained State = "RETAINED"

	// StateSkipped means both audits already passed and no scratch branch
	// was needed.
	StateSkipped State = "SKIPPED"

	// StateResolved is the successful terminal state; the outcome is final.
	StateResolved State = "RESOLVED"

	// StateAborted is the failing terminal state. Already-pushed scratch
	// commits are NOT rolled back; cleanup is manual.
	StateAborted State = "ABORTED"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateAborted
}

// ReleaseRequest describes one release-preparation invocation.
// It is created once per run and never mutated.
type ReleaseRequest struct {
	// Version is the requested release version, e.g. "2.1.0" or "1.9.0rc1".
	Version string

	// SourceBranch is the ref the scratch branch is cut from.
	SourceBranch string

	// TargetBranch is the branch a non-trial run promotes into.
	TargetBranch string

	// TrialRun prepares the release on the scratch branch but never merges;
	// the scratch branch is retained as the release source.
	TrialRun bool

	// Nightly marks a nightly release; it only affects the scratch branch
	// naming qualifier.
	Nightly bool
}

// VersionAudit is the result of comparing the declared package version
// against the requested one. Comparison is an exact string match; no
// semantic normalization is applied.
type VersionAudit struct {
	Current   string
	Requested string
	IsCurrent bool
}

// ChangelogAudit is the result of resolving the expected changelog file
// for the requested version.
type ChangelogAudit struct {
	// Path is the computed changelog location, e.g. ".changes/1.9.0-rc1.md".
	Path         string
	Exists       bool
	BaseVersion  string
	Prerelease   string
	IsPrerelease bool
}

// ScratchBranch describes the temporary branch holding pending release
// mutations. It exists only when at least one audit was not satisfied.
type ScratchBranch struct {
	Name    string
	Created bool
}

// ReleaseOutcome is the terminal artifact of a run, consumed by downstream
// publishing collaborators.
type ReleaseOutcome struct {
	FinalCommitSHA string
	ChangelogPath  string
}

// ReleaseRun is the per-run record threaded through the engine. All state
// that earlier incarnations of this flow kept in shared environment
// variables lives here explicitly.
type ReleaseRun struct {
	ID      string
	State   State
	Request ReleaseRequest

	// RequestedSHA is the HEAD of the source branch captured during the
	// audit stage. It becomes the final commit when no mutation is needed.
	RequestedSHA string

	VersionAudit   VersionAudit
	ChangelogAudit ChangelogAudit
	Scratch        ScratchBranch

	// Mutation bookkeeping. Each mutation commits independently and is
	// skipped when its audit already passed.
	ChangelogGenerated bool
	VersionBumped      bool

	// FlakyFailures records flaky-tagged cases that failed during the
	// secondary verification pass. They never block promotion.
	FlakyFailures []CaseResult

	Outcome ReleaseOutcome
	Err     error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Mutated reports whether any mutation was committed to the scratch branch.
func (r *ReleaseRun) Mutated() bool {
	return r.ChangelogGenerated || r.VersionBumped
}

// NeedsWork reports whether a scratch branch is required, i.e. at least
// one audit did not pass.
func (r *ReleaseRun) NeedsWork() bool {
	return !r.ChangelogAudit.Exists || !r.VersionAudit.IsCurrent
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	// State, if non-empty, limits results to runs in the given state.
	State State
}

// ReleaseDecision is the read-only answer produced by Engine.Plan: what a
// run with this request would do, without any side effects. The eventual
// scratch branch name is not part of the decision because it embeds a
// per-run identifier.
type ReleaseDecision struct {
	VersionAudit   VersionAudit
	ChangelogAudit ChangelogAudit

	// NeedsBranch mirrors the branch-materialization invariant:
	// true iff at least one audit failed.
	NeedsBranch bool

	// BranchQualifier is the naming qualifier a scratch branch would use.
	BranchQualifier string
}
