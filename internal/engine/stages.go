package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/relcut/relcut/internal/changelog"
	"github.com/relcut/relcut/pkg/api"
)

// audit computes both audits and captures the requested commit. It is the
// only stage guaranteed to run before any mutation, so parse failures
// surface here, before anything touches the repository.
func (e *engineImpl) audit(ctx context.Context, run *api.ReleaseRun) error {
	v, err := e.plan.Versions.Parse(run.Request.Version)
	if err != nil {
		return err
	}

	sha, err := e.plan.Host.HeadSHA(ctx, run.Request.SourceBranch)
	if err != nil {
		return err
	}
	run.RequestedSHA = sha

	current, err := e.plan.Metadata.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	run.VersionAudit = api.VersionAudit{
		Current:   current,
		Requested: run.Request.Version,
		// Exact match only. Semantically equal spellings of the same
		// version are treated as different.
		IsCurrent: current == run.Request.Version,
	}

	exists, err := e.plan.Changelog.Exists(v)
	if err != nil {
		return err
	}
	run.ChangelogAudit = api.ChangelogAudit{
		Path:         e.plan.Changelog.Path(v),
		Exists:       exists,
		BaseVersion:  v.Base,
		Prerelease:   v.Prerelease,
		IsPrerelease: v.IsPrerelease(),
	}

	return nil
}

// materializeBranch creates and pushes the run-unique scratch branch.
func (e *engineImpl) materializeBranch(ctx context.Context, run *api.ReleaseRun) error {
	name := fmt.Sprintf("prep-release/%s/%s_%s",
		scratchQualifier(run.Request), run.Request.Version, run.ID)

	if err := e.plan.Host.CreateBranch(ctx, name, run.Request.SourceBranch); err != nil {
		return err
	}

	run.Scratch = api.ScratchBranch{Name: name, Created: true}
	e.appendEvent(ctx, run, api.EventBranchCreated, StageMaterializeBranch, name)
	return nil
}

// scratchQualifier picks the branch naming qualifier: nightly releases and
// trial runs get fixed markers, everything else is named after the deploy
// target.
func scratchQualifier(req api.ReleaseRequest) string {
	switch {
	case req.Nightly:
		return "nightly-release"
	case req.TrialRun:
		return "test-run"
	default:
		return req.TargetBranch
	}
}

// generateChanges performs the two independent mutations on the scratch
// branch. Each commits on its own and is skipped when its audit already
// passed.
func (e *engineImpl) generateChanges(ctx context.Context, run *api.ReleaseRun) error {
	v := api.Version{
		Base:       run.ChangelogAudit.BaseVersion,
		Prerelease: run.ChangelogAudit.Prerelease,
	}

	if !run.ChangelogAudit.Exists {
		pres, err := e.plan.Changelog.ExistingPrereleases(v)
		if err != nil {
			return err
		}
		mode := changelog.ChooseMode(v, pres)

		path, err := e.plan.Changelog.Generate(ctx, v, mode)
		if err != nil {
			return err
		}

		// A generation step that leaves no file behind means the
		// generator or its template is broken.
		exists, err := e.plan.Changelog.Exists(v)
		if err != nil {
			return err
		}
		if !exists {
			return &api.GeneratorError{Path: run.ChangelogAudit.Path}
		}

		msg := fmt.Sprintf("Update changelog for the %s release", v.String())
		if _, err := e.plan.Host.Commit(ctx, run.Scratch.Name, msg); err != nil {
			return err
		}
		if err := e.pushWithRetry(ctx, run.Scratch.Name); err != nil {
			return err
		}

		run.ChangelogGenerated = true
		e.appendEvent(ctx, run, api.EventChangelogGenerated, StageGenerateChanges, path)
	}

	if !run.VersionAudit.IsCurrent {
		if err := e.plan.Metadata.SetVersion(ctx, run.Request.Version); err != nil {
			return err
		}

		msg := "Bumping version to " + run.Request.Version
		if _, err := e.plan.Host.Commit(ctx, run.Scratch.Name, msg); err != nil {
			return err
		}
		if err := e.pushWithRetry(ctx, run.Scratch.Name); err != nil {
			return err
		}

		run.VersionBumped = true
		e.appendEvent(ctx, run, api.EventVersionBumped, StageGenerateChanges, run.Request.Version)
	}

	return nil
}

// verify runs the gate against the scratch branch. Flaky failures are
// recorded on the run; only non-flaky failures abort.
func (e *engineImpl) verify(ctx context.Context, run *api.ReleaseRun) error {
	report, err := e.gate.Verify(ctx, run.Scratch.Name)
	if err != nil {
		return err
	}

	run.FlakyFailures = report.FlakyFailures()
	for _, c := range run.FlakyFailures {
		e.appendEvent(ctx, run, api.EventFlakyRecorded, StageVerify, c.Name+" ("+c.Cell.String()+")")
	}

	return nil
}

// promote merges the scratch branch into the target and deletes it. The
// post-merge target HEAD becomes the final commit.
func (e *engineImpl) promote(ctx context.Context, run *api.ReleaseRun) error {
	sha, err := e.plan.Host.Merge(ctx, run.Scratch.Name, run.Request.TargetBranch)
	if err != nil {
		return err
	}
	e.appendEvent(ctx, run, api.EventMergeCompleted, StagePromote, sha)

	if err := e.plan.Host.DeleteBranch(ctx, run.Scratch.Name); err != nil {
		return err
	}
	e.appendEvent(ctx, run, api.EventBranchDeleted, StagePromote, run.Scratch.Name)

	run.Outcome.FinalCommitSHA = sha
	return nil
}

// retain keeps the scratch branch as the release source for trial runs.
func (e *engineImpl) retain(ctx context.Context, run *api.ReleaseRun) error {
	sha, err := e.plan.Host.HeadSHA(ctx, run.Scratch.Name)
	if err != nil {
		return err
	}
	run.Outcome.FinalCommitSHA = sha
	return nil
}

// skip resolves a run where both audits already passed: the original
// requested commit is released as-is.
func (e *engineImpl) skip(ctx context.Context, run *api.ReleaseRun) error {
	run.Outcome.FinalCommitSHA = run.RequestedSHA
	return nil
}

// resolve finalizes the outcome.
func (e *engineImpl) resolve(ctx context.Context, run *api.ReleaseRun) error {
	run.Outcome.ChangelogPath = run.ChangelogAudit.Path
	run.FinishedAt = time.Now()
	return nil
}

// pushWithRetry pushes branch, retrying per the plan's push retry policy.
// Only pushes are retried; merges never are.
func (e *engineImpl) pushWithRetry(ctx context.Context, branch string) error {
	policy := e.plan.PushRetry
	if policy == nil {
		return e.plan.Host.Push(ctx, branch)
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := policy.InitialBackoff
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = e.plan.Host.Push(ctx, branch)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
				delay = policy.MaxBackoff
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			next := time.Duration(float64(backoff) * multiplier)
			if policy.MaxBackoff > 0 && next > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			} else {
				backoff = next
			}
		}
	}
	return lastErr
}
