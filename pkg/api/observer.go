package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the release engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the run.
type Observer interface {
	// OnRunStart is called once when a release run begins, before the audit
	// stage executes.
	OnRunStart(ctx context.Context, run *ReleaseRun)

	// OnRunResolved is called when a run reaches StateResolved.
	OnRunResolved(ctx context.Context, run *ReleaseRun)

	// OnRunAborted is called when a run transitions to StateAborted.
	OnRunAborted(ctx context.Context, run *ReleaseRun, err error)

	// OnStageStart is called before a stage action executes.
	OnStageStart(ctx context.Context, run *ReleaseRun, stage string)

	// OnStageCompleted is called after a stage action returns, for both
	// successes and failures (err != nil).
	OnStageCompleted(ctx context.Context, run *ReleaseRun, stage string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *ReleaseRun)                 {}
func (NoopObserver) OnRunResolved(ctx context.Context, run *ReleaseRun)              {}
func (NoopObserver) OnRunAborted(ctx context.Context, run *ReleaseRun, err error)    {}
func (NoopObserver) OnStageStart(ctx context.Context, run *ReleaseRun, stage string) {}
func (NoopObserver) OnStageCompleted(ctx context.Context, run *ReleaseRun, stage string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *ReleaseRun) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunResolved(ctx context.Context, run *ReleaseRun) {
	for _, o := range c.observers {
		o.OnRunResolved(ctx, run)
	}
}

func (c *CompositeObserver) OnRunAborted(ctx context.Context, run *ReleaseRun, err error) {
	for _, o := range c.observers {
		o.OnRunAborted(ctx, run, err)
	}
}

func (c *CompositeObserver) OnStageStart(ctx context.Context, run *ReleaseRun, stage string) {
	for _, o := range c.observers {
		o.OnStageStart(ctx, run, stage)
	}
}

func (c *CompositeObserver) OnStageCompleted(ctx context.Context, run *ReleaseRun, stage string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStageCompleted(ctx, run, stage, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / stage lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *ReleaseRun) {
	o.Logger.InfoContext(ctx, "release_run_start",
		slog.String("run_id", run.ID),
		slog.String("version", run.Request.Version),
		slog.Bool("trial_run", run.Request.TrialRun),
		slog.Bool("nightly", run.Request.Nightly),
	)
}

func (o *LoggingObserver) OnRunResolved(ctx context.Context, run *ReleaseRun) {
	o.Logger.InfoContext(ctx, "release_run_resolved",
		slog.String("run_id", run.ID),
		slog.String("version", run.Request.Version),
		slog.String("final_commit", run.Outcome.FinalCommitSHA),
		slog.String("changelog_path", run.Outcome.ChangelogPath),
	)
}

func (o *LoggingObserver) OnRunAborted(ctx context.Context, run *ReleaseRun, err error) {
	o.Logger.ErrorContext(ctx, "release_run_aborted",
		slog.String("run_id", run.ID),
		slog.String("version", run.Request.Version),
		slog.String("state", string(run.State)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStageStart(ctx context.Context, run *ReleaseRun, stage string) {
	o.Logger.DebugContext(ctx, "stage_start",
		slog.String("run_id", run.ID),
		slog.String("stage", stage),
	)
}

func (o *LoggingObserver) OnStageCompleted(ctx context.Context, run *ReleaseRun, stage string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "stage_completed",
		slog.String("run_id", run.ID),
		slog.String("stage", stage),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate stage durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted        atomic.Int64
	runsResolved       atomic.Int64
	runsAborted        atomic.Int64
	stagesCompleted    atomic.Int64
	totalStageDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted  int64
	RunsResolved int64
	RunsAborted  int64
	RunsInFlight int64

	StagesCompleted  int64
	AvgStageDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *ReleaseRun) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunResolved(ctx context.Context, run *ReleaseRun) {
	m.runsResolved.Add(1)
}

func (m *BasicMetrics) OnRunAborted(ctx context.Context, run *ReleaseRun, err error) {
	m.runsAborted.Add(1)
}

func (m *BasicMetrics) OnStageCompleted(ctx context.Context, run *ReleaseRun, stage string, err error, d time.Duration) {
	// Only count successful stages for average duration.
	if err == nil {
		m.stagesCompleted.Add(1)
		m.totalStageDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	resolved := m.runsResolved.Load()
	aborted := m.runsAborted.Load()
	stages := m.stagesCompleted.Load()
	totalNs := m.totalStageDuration.Load()

	var avg time.Duration
	if stages > 0 {
		avg = time.Duration(totalNs / stages)
	}

	return BasicMetricsSnapshot{
		RunsStarted:      started,
		RunsResolved:     resolved,
		RunsAborted:      aborted,
		RunsInFlight:     started - resolved - aborted,
		StagesCompleted:  stages,
		AvgStageDuration: avg,
	}
}
