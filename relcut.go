package relcut

import (
	"context"
	"database/sql"

	"github.com/relcut/relcut/internal/engine"
	"github.com/relcut/relcut/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	ReleaseRequest       = api.ReleaseRequest
	ReleaseRun           = api.ReleaseRun
	ReleaseDecision      = api.ReleaseDecision
	ReleasePlan          = api.ReleasePlan
	ReleaseOutcome       = api.ReleaseOutcome
	ReleaseEvent         = api.ReleaseEvent
	RunListOptions       = api.RunListOptions
	State                = api.State
	Version              = api.Version
	VersionParser        = api.VersionParser
	SourceHost           = api.SourceHost
	MetadataStore        = api.MetadataStore
	ChangelogTool        = api.ChangelogTool
	TestRunner           = api.TestRunner
	MatrixCell           = api.MatrixCell
	CaseResult           = api.CaseResult
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export run states for convenience.

const (
	StateStart    = api.StateStart
	StateAudited  = api.StateAudited
	StateBranched = api.StateBranched
	StateMutated  = api.StateMutated
	StateVerified = api.StateVerified
	StatePromoted = api.StatePromoted
	StateRetained = api.StateRetained
	StateSkipped  = api.StateSkipped
	StateResolved = api.StateResolved
	StateAborted  = api.StateAborted
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine that keeps run records and events
// entirely in memory.
func NewInMemoryEngine(plan ReleasePlan) Engine {
	return engine.NewInMemoryEngine(plan)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(plan ReleasePlan, obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(plan, obs)
}

// NewSQLiteEngine returns an Engine that journals run records and events
// in a SQLite database.
func NewSQLiteEngine(db *sql.DB, plan ReleasePlan) (Engine, error) {
	return engine.NewSQLiteEngine(db, plan)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, plan ReleasePlan, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, plan, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// Prepare runs a release request through the whole pipeline synchronously.
func Prepare(ctx context.Context, eng Engine, req ReleaseRequest) (*ReleaseRun, error) {
	return eng.Prepare(ctx, req)
}

// PlanRelease runs only the audits and reports what a full run would do,
// without creating branches or generating changes.
func PlanRelease(ctx context.Context, eng Engine, req ReleaseRequest) (*ReleaseDecision, error) {
	return eng.Plan(ctx, req)
}

// GetRun fetches a run record by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*ReleaseRun, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists run records according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*ReleaseRun, error) {
	return eng.ListRuns(ctx, opts)
}

// Events returns the recorded event history of a run in append order.
func Events(ctx context.Context, eng Engine, runID string) ([]ReleaseEvent, error) {
	return eng.Events(ctx, runID)
}
