package engine

import (
	"context"

	"github.com/relcut/relcut/pkg/api"
)

// stageFunc is a single stage action. It mutates the run record and
// returns a fatal error to abort the run.
type stageFunc func(ctx context.Context, run *api.ReleaseRun) error

// transition is one row of the release state machine: from a state, when
// the guard holds, run the named stage and move to the next state.
// Guards on transitions leaving the same state must be mutually exclusive;
// a nil guard always holds.
type transition struct {
	from  api.State
	stage string
	guard func(*api.ReleaseRun) bool
	act   stageFunc
	to    api.State
}

// transitions is the full state-transition table:
//
//	START → AUDITED → {BRANCHED → MUTATED → VERIFIED → [PROMOTED|RETAINED]}
//	                | SKIPPED
//	→ RESOLVED
//
// Fatal stage errors short-circuit to ABORTED from any state.
func (e *engineImpl) transitions() []transition {
	return []transition{
		{from: api.StateStart, stage: StageAudit, act: e.audit, to: api.StateAudited},

		{from: api.StateAudited, stage: StageMaterializeBranch, guard: needsWork, act: e.materializeBranch, to: api.StateBranched},
		{from: api.StateAudited, stage: StageSkip, guard: not(needsWork), act: e.skip, to: api.StateSkipped},

		{from: api.StateBranched, stage: StageGenerateChanges, act: e.generateChanges, to: api.StateMutated},
		{from: api.StateMutated, stage: StageVerify, act: e.verify, to: api.StateVerified},

		{from: api.StateVerified, stage: StagePromote, guard: not(isTrial), act: e.promote, to: api.StatePromoted},
		{from: api.StateVerified, stage: StageRetain, guard: isTrial, act: e.retain, to: api.StateRetained},

		{from: api.StatePromoted, stage: StageResolve, act: e.resolve, to: api.StateResolved},
		{from: api.StateRetained, stage: StageResolve, act: e.resolve, to: api.StateResolved},
		{from: api.StateSkipped, stage: StageResolve, act: e.resolve, to: api.StateResolved},
	}
}

// Stage names, also used in events and observer callbacks.
const (
	StageAudit             = "audit"
	StageMaterializeBranch = "materialize-branch"
	StageSkip              = "skip"
	StageGenerateChanges   = "generate-changes"
	StageVerify            = "verify"
	StagePromote           = "promote"
	StageRetain            = "retain"
	StageResolve           = "resolve"
)

// next returns the first transition out of the run's current state whose
// guard holds.
func (e *engineImpl) next(run *api.ReleaseRun) (transition, bool) {
	for _, tr := range e.transitions() {
		if tr.from != run.State {
			continue
		}
		if tr.guard == nil || tr.guard(run) {
			return tr, true
		}
	}
	return transition{}, false
}

func needsWork(run *api.ReleaseRun) bool {
	return run.NeedsWork()
}

func isTrial(run *api.ReleaseRun) bool {
	return run.Request.TrialRun
}

func not(guard func(*api.ReleaseRun) bool) func(*api.ReleaseRun) bool {
	return func(run *api.ReleaseRun) bool {
		return !guard(run)
	}
}
