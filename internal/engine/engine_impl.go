package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relcut/relcut/internal/persistence"
	"github.com/relcut/relcut/pkg/api"
	"github.com/relcut/relcut/pkg/verify"
)

// engineImpl is a synchronous, in-process engine implementation. One run is
// strictly sequential; the only internal parallelism is the verification
// gate's matrix fan-out.
type engineImpl struct {
	plan api.ReleasePlan
	gate *verify.Gate

	runs   persistence.RunStore
	events persistence.EventStore

	observer api.Observer
	newID    func() string
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Plan        api.ReleasePlan
	Persistence persistence.Persistence
	Observer    api.Observer

	// IDFunc overrides run ID generation; nil means random UUIDs.
	IDFunc func() string
}

// NewInMemoryEngine returns an Engine whose run journal lives in memory.
func NewInMemoryEngine(plan api.ReleasePlan) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Plan: plan,
		Persistence: persistence.Persistence{
			Runs:   mem,
			Events: mem,
		},
	})
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(plan api.ReleasePlan, obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Plan: plan,
		Persistence: persistence.Persistence{
			Runs:   mem,
			Events: mem,
		},
		Observer: obs,
	})
}

// NewSQLiteEngine returns an Engine that journals runs and events in SQLite.
func NewSQLiteEngine(db *sql.DB, plan api.ReleasePlan) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Plan: plan,
		Persistence: persistence.Persistence{
			Runs:   store,
			Events: store,
		},
	}), nil
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, plan api.ReleasePlan, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Plan: plan,
		Persistence: persistence.Persistence{
			Runs:   store,
			Events: store,
		},
		Observer: obs,
	}), nil
}

// NewEngineWithConfig creates a new Engine using the given configuration.
// A nil run store falls back to an in-memory store and a nil event store
// to a no-op store, so a zero Persistence is a valid configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	runs := cfg.Persistence.Runs
	if runs == nil {
		runs = persistence.NewInMemoryStore()
	}
	events := cfg.Persistence.Events
	if events == nil {
		events = persistence.NoopEventStore{}
	}
	idFunc := cfg.IDFunc
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return &engineImpl{
		plan:     cfg.Plan,
		gate:     verify.NewGate(cfg.Plan),
		runs:     runs,
		events:   events,
		observer: obs,
		newID:    idFunc,
	}
}

func (e *engineImpl) Prepare(ctx context.Context, req api.ReleaseRequest) (*api.ReleaseRun, error) {
	if err := e.plan.Validate(); err != nil {
		return nil, err
	}

	run := &api.ReleaseRun{
		ID:        e.newID(),
		State:     api.StateStart,
		Request:   req,
		StartedAt: time.Now(),
	}

	e.observer.OnRunStart(ctx, run)

	// Persist the run as soon as it starts.
	if err := e.runs.SaveRun(run); err != nil {
		run.State = api.StateAborted
		run.Err = err
		e.observer.OnRunAborted(ctx, run, err)
		return run, err
	}
	e.appendEvent(ctx, run, api.EventRunStarted, "", "")

	return e.execute(ctx, run)
}

func (e *engineImpl) Plan(ctx context.Context, req api.ReleaseRequest) (*api.ReleaseDecision, error) {
	if err := e.plan.Validate(); err != nil {
		return nil, err
	}

	v, err := e.plan.Versions.Parse(req.Version)
	if err != nil {
		return nil, err
	}

	current, err := e.plan.Metadata.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := e.plan.Changelog.Exists(v)
	if err != nil {
		return nil, err
	}

	decision := &api.ReleaseDecision{
		VersionAudit: api.VersionAudit{
			Current:   current,
			Requested: req.Version,
			IsCurrent: current == req.Version,
		},
		ChangelogAudit: api.ChangelogAudit{
			Path:         e.plan.Changelog.Path(v),
			Exists:       exists,
			BaseVersion:  v.Base,
			Prerelease:   v.Prerelease,
			IsPrerelease: v.IsPrerelease(),
		},
		BranchQualifier: scratchQualifier(req),
	}
	decision.NeedsBranch = !decision.ChangelogAudit.Exists || !decision.VersionAudit.IsCurrent

	return decision, nil
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.ReleaseRun, error) {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("release run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.ReleaseRun, error) {
	filter := persistence.RunFilter{
		State: opts.State,
	}
	return e.runs.ListRuns(filter)
}

func (e *engineImpl) Events(ctx context.Context, runID string) ([]api.ReleaseEvent, error) {
	return e.events.ListEvents(ctx, runID)
}

// execute walks the transition table until the run reaches a terminal
// state. The first stage error aborts the run; nothing is rolled back.
func (e *engineImpl) execute(ctx context.Context, run *api.ReleaseRun) (*api.ReleaseRun, error) {
	for !run.State.Terminal() {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, run, err)
		}

		tr, ok := e.next(run)
		if !ok {
			// Unreachable with a well-formed table; treated as fatal.
			return e.abort(ctx, run, fmt.Errorf("no transition from state %s", run.State))
		}

		e.observer.OnStageStart(ctx, run, tr.stage)
		e.appendEvent(ctx, run, api.EventStageStarted, tr.stage, "")

		startTime := time.Now()
		err := tr.act(ctx, run)
		duration := time.Since(startTime)

		e.observer.OnStageCompleted(ctx, run, tr.stage, err, duration)

		if err != nil {
			e.appendEvent(ctx, run, api.EventStageFailed, tr.stage, err.Error())
			return e.abort(ctx, run, err)
		}
		e.appendEvent(ctx, run, api.EventStageCompleted, tr.stage, "")

		run.State = tr.to
		_ = e.runs.UpdateRun(run)
	}

	e.appendEvent(ctx, run, api.EventRunResolved, "", run.Outcome.FinalCommitSHA)
	e.observer.OnRunResolved(ctx, run)

	return run, nil
}

func (e *engineImpl) abort(ctx context.Context, run *api.ReleaseRun, err error) (*api.ReleaseRun, error) {
	run.State = api.StateAborted
	run.Err = err
	run.FinishedAt = time.Now()
	_ = e.runs.UpdateRun(run)

	e.appendEvent(ctx, run, api.EventRunAborted, "", err.Error())
	e.observer.OnRunAborted(ctx, run, err)

	return run, err
}

func (e *engineImpl) appendEvent(ctx context.Context, run *api.ReleaseRun, typ api.EventType, stage, detail string) {
	_ = e.events.AppendEvent(ctx, api.ReleaseEvent{
		RunID:   run.ID,
		At:      time.Now(),
		Type:    typ,
		Stage:   stage,
		Version: run.Request.Version,
		Detail:  detail,
	})
}
