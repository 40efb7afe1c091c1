package relcut

import (
	"context"
	"path/filepath"

	"github.com/relcut/relcut/internal/changelog"
	"github.com/relcut/relcut/internal/githost"
	"github.com/relcut/relcut/internal/metadata"
	"github.com/relcut/relcut/internal/testexec"
	"github.com/relcut/relcut/internal/version"
)

// LocalRunnerConfig configures NewLocalRunner. Only Dir is required;
// every other field has a working default for a conventional repository
// layout.
type LocalRunnerConfig struct {
	// Dir is the git working tree releases operate on.
	Dir string

	// Remote is the git remote scratch branches are pushed to.
	// Defaults to "origin".
	Remote string

	// MetadataFile is the YAML file holding the current version, relative
	// to Dir. Defaults to "metadata.yaml". MetadataKey defaults to
	// "version".
	MetadataFile string
	MetadataKey  string

	// ChangesDir is the changelog tree, relative to Dir.
	// Defaults to ".changes".
	ChangesDir string

	// EnvSetupPath gates the integration suite; empty skips it.
	EnvSetupPath string

	// UnitCommand and IntegrationCommand are the suite commands run per
	// matrix cell. An empty command reports its suite as skipped.
	UnitCommand        []string
	IntegrationCommand []string

	UnitMatrix        []MatrixCell
	IntegrationMatrix []MatrixCell

	// Parallelism bounds concurrent matrix cells in primary passes.
	// FlakyParallelism <= 0 falls back to half of Parallelism, floor one.
	Parallelism      int
	FlakyParallelism int

	PushRetry *RetryPolicy

	// Observer receives run and stage notifications. Nil means none.
	Observer Observer
}

// LocalRunner bundles an in-memory Engine with the default collaborators
// for a local git working tree: exec-git source host, YAML metadata store,
// filesystem changelog tool, and command-per-cell test runner.
//
// Typical usage:
//
//	runner := relcut.NewLocalRunner(relcut.LocalRunnerConfig{Dir: "."})
//	run, err := runner.Prepare(ctx, relcut.ReleaseRequest{
//	    Version:      "1.9.0",
//	    SourceBranch: "main",
//	    TargetBranch: "main",
//	})
//
// Run records live only as long as the process; use NewSQLiteEngine with
// an explicitly built plan when runs must survive restarts.
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Plan is the assembled release plan, exposed so callers can reuse the
	// collaborators directly.
	Plan ReleasePlan
}

// NewLocalRunner constructs a LocalRunner for the working tree in cfg.Dir.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(cfg LocalRunnerConfig) *LocalRunner {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.MetadataFile == "" {
		cfg.MetadataFile = "metadata.yaml"
	}
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = metadata.DefaultKey
	}
	if cfg.ChangesDir == "" {
		cfg.ChangesDir = ".changes"
	}
	if cfg.FlakyParallelism <= 0 {
		cfg.FlakyParallelism = cfg.Parallelism / 2
		if cfg.FlakyParallelism < 1 {
			cfg.FlakyParallelism = 1
		}
	}

	plan := ReleasePlan{
		Host: &githost.ExecHost{
			Dir:    cfg.Dir,
			Remote: cfg.Remote,
		},
		Versions: version.Parser{},
		Metadata: &metadata.YAMLFile{
			Path: filepath.Join(cfg.Dir, cfg.MetadataFile),
			Key:  cfg.MetadataKey,
		},
		Changelog: &changelog.FileTool{
			Dir: filepath.Join(cfg.Dir, cfg.ChangesDir),
		},
		Tests: &testexec.CommandRunner{
			Dir:                cfg.Dir,
			UnitCommand:        cfg.UnitCommand,
			IntegrationCommand: cfg.IntegrationCommand,
			EnvSetupPath:       cfg.EnvSetupPath,
		},
		UnitMatrix:        cfg.UnitMatrix,
		IntegrationMatrix: cfg.IntegrationMatrix,
		EnvSetupPath:      cfg.EnvSetupPath,
		Parallelism:       cfg.Parallelism,
		FlakyParallelism:  cfg.FlakyParallelism,
		PushRetry:         cfg.PushRetry,
	}

	var eng Engine
	if cfg.Observer != nil {
		eng = NewInMemoryEngineWithObserver(plan, cfg.Observer)
	} else {
		eng = NewInMemoryEngine(plan)
	}

	return &LocalRunner{
		Engine: eng,
		Plan:   plan,
	}
}

// Prepare runs a release request through the whole pipeline synchronously.
func (r *LocalRunner) Prepare(ctx context.Context, req ReleaseRequest) (*ReleaseRun, error) {
	return r.Engine.Prepare(ctx, req)
}

// PlanRelease reports what Prepare would do, without side effects.
func (r *LocalRunner) PlanRelease(ctx context.Context, req ReleaseRequest) (*ReleaseDecision, error) {
	return r.Engine.Plan(ctx, req)
}
