package relcut

import (
	"fmt"

	"github.com/relcut/relcut/pkg/api"
)

// PlanBuilder provides a fluent API for assembling a ReleasePlan:
//
//	plan := relcut.NewPlan().
//	    Host(host).
//	    Versions(version.Parser{}).
//	    Metadata(store).
//	    Changelog(tool).
//	    Tests(runner).
//	    IntegrationMatrix(cells...).
//	    Build()
//
//	eng := relcut.NewInMemoryEngine(plan)
type PlanBuilder struct {
	plan api.ReleasePlan
}

// NewPlan creates an empty plan builder.
func NewPlan() *PlanBuilder {
	return &PlanBuilder{}
}

// Host sets the source host collaborator.
func (b *PlanBuilder) Host(h SourceHost) *PlanBuilder {
	if h == nil {
		panic("relcut: plan host must not be nil")
	}
	b.plan.Host = h
	return b
}

// Versions sets the version parser.
func (b *PlanBuilder) Versions(p VersionParser) *PlanBuilder {
	if p == nil {
		panic("relcut: plan version parser must not be nil")
	}
	b.plan.Versions = p
	return b
}

// Metadata sets the metadata store holding the current version.
func (b *PlanBuilder) Metadata(m MetadataStore) *PlanBuilder {
	if m == nil {
		panic("relcut: plan metadata store must not be nil")
	}
	b.plan.Metadata = m
	return b
}

// Changelog sets the changelog tool.
func (b *PlanBuilder) Changelog(c ChangelogTool) *PlanBuilder {
	if c == nil {
		panic("relcut: plan changelog tool must not be nil")
	}
	b.plan.Changelog = c
	return b
}

// Tests sets the test runner. A plan without a runner skips verification.
func (b *PlanBuilder) Tests(r TestRunner) *PlanBuilder {
	b.plan.Tests = r
	return b
}

// UnitMatrix sets the matrix cells the unit suite fans out over.
func (b *PlanBuilder) UnitMatrix(cells ...MatrixCell) *PlanBuilder {
	b.plan.UnitMatrix = cells
	return b
}

// IntegrationMatrix sets the matrix cells the integration suite fans out
// over. Integration verification also requires EnvSetup.
func (b *PlanBuilder) IntegrationMatrix(cells ...MatrixCell) *PlanBuilder {
	b.plan.IntegrationMatrix = cells
	return b
}

// EnvSetup sets the environment-setup path gating the integration suite.
// When empty, the integration suite is not run.
func (b *PlanBuilder) EnvSetup(path string) *PlanBuilder {
	b.plan.EnvSetupPath = path
	return b
}

// Parallelism sets worker counts for the primary and flaky verification
// passes. flaky <= 0 falls back to half the primary count, with a floor
// of one worker.
func (b *PlanBuilder) Parallelism(primary, flaky int) *PlanBuilder {
	if flaky <= 0 {
		flaky = primary / 2
		if flaky < 1 {
			flaky = 1
		}
	}
	b.plan.Parallelism = primary
	b.plan.FlakyParallelism = flaky
	return b
}

// PushRetry sets the retry policy applied to branch pushes.
func (b *PlanBuilder) PushRetry(policy RetryPolicy) *PlanBuilder {
	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored plan.
	p := policy
	b.plan.PushRetry = &p
	return b
}

// Build validates the assembled plan and returns it.
func (b *PlanBuilder) Build() (ReleasePlan, error) {
	if err := b.plan.Validate(); err != nil {
		return ReleasePlan{}, fmt.Errorf("relcut: %w", err)
	}
	return b.plan, nil
}

// MustBuild is like Build but panics on error.
// Useful for initialization in main().
func (b *PlanBuilder) MustBuild() ReleasePlan {
	plan, err := b.Build()
	if err != nil {
		panic(err)
	}
	return plan
}
