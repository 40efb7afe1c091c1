// Package verify implements the verification gate: suite execution fanned
// out over the test matrix, with the flaky pass strictly ordered after the
// primary pass.
package verify

import (
	"context"
	"sync"

	"github.com/relcut/relcut/internal/matrix"
	"github.com/relcut/relcut/pkg/api"
)

// Gate runs the test suites that guard promotion.
type Gate struct {
	Runner api.TestRunner

	UnitMatrix        []api.MatrixCell
	IntegrationMatrix []api.MatrixCell

	// EnvSetupPath enables the integration suite when non-empty.
	EnvSetupPath string

	// Parallelism bounds concurrent cells in primary passes; values <= 0
	// mean 1.
	Parallelism int

	// FlakyParallelism bounds the flaky pass, which runs with reduced
	// concurrency to avoid resource contention. Values <= 0 mean 1.
	FlakyParallelism int
}

// NewGate builds a Gate from the verification settings of a plan.
func NewGate(plan api.ReleasePlan) *Gate {
	return &Gate{
		Runner:            plan.Tests,
		UnitMatrix:        plan.UnitMatrix,
		IntegrationMatrix: plan.IntegrationMatrix,
		EnvSetupPath:      plan.EnvSetupPath,
		Parallelism:       plan.Parallelism,
		FlakyParallelism:  plan.FlakyParallelism,
	}
}

// Report collects the per-pass results of one gate execution.
type Report struct {
	Unit    []api.CaseResult
	Primary []api.CaseResult
	Flaky   []api.CaseResult
}

// FlakyFailures returns the flaky-pass cases that failed. These are
// recorded on the run and never block promotion.
func (r *Report) FlakyFailures() []api.CaseResult {
	var out []api.CaseResult
	for _, c := range r.Flaky {
		if !c.Passed && !c.Skipped {
			out = append(out, c)
		}
	}
	return out
}

// Verify runs the unit suite and, when an environment setup path is
// configured, the integration suite against ref. The integration suite is
// split: a primary pass excluding flaky-tagged cases gates promotion, and
// a flaky-only pass runs afterwards with reduced parallelism.
//
// A nil Runner disables the gate entirely.
func (g *Gate) Verify(ctx context.Context, ref string) (*Report, error) {
	rep := &Report{}
	if g.Runner == nil {
		return rep, nil
	}

	unit, err := g.runPass(ctx, passConfig{
		suite:       api.SuiteUnit,
		cells:       g.UnitMatrix,
		parallelism: g.Parallelism,
		ref:         ref,
	})
	rep.Unit = unit
	if err != nil {
		return rep, err
	}
	if failures := blockingFailures(unit); len(failures) > 0 {
		return rep, &api.TestFailureError{Suite: api.SuiteUnit, Failures: failures}
	}

	if g.EnvSetupPath == "" {
		return rep, nil
	}

	primary, err := g.runPass(ctx, passConfig{
		suite:        api.SuiteIntegration,
		cells:        g.IntegrationMatrix,
		parallelism:  g.Parallelism,
		ref:          ref,
		excludeFlaky: true,
	})
	rep.Primary = primary
	if err != nil {
		return rep, err
	}
	if failures := blockingFailures(primary); len(failures) > 0 {
		return rep, &api.TestFailureError{Suite: api.SuiteIntegration, Failures: failures}
	}

	// The flaky pass only starts after the primary pass succeeded.
	flaky, err := g.runPass(ctx, passConfig{
		suite:       api.SuiteIntegration,
		cells:       g.IntegrationMatrix,
		parallelism: g.FlakyParallelism,
		ref:         ref,
		flakyOnly:   true,
	})
	rep.Flaky = flaky
	if err != nil {
		return rep, err
	}

	return rep, nil
}

type passConfig struct {
	suite        api.Suite
	cells        []api.MatrixCell
	parallelism  int
	ref          string
	flakyOnly    bool
	excludeFlaky bool
}

// runPass fans cfg.cells out over a bounded worker pool pulling from a
// cell queue. Cells within a pass are order-independent.
func (g *Gate) runPass(ctx context.Context, cfg passConfig) ([]api.CaseResult, error) {
	cells := cfg.cells
	if len(cells) == 0 {
		// A missing matrix still runs the suite once.
		cells = []api.MatrixCell{{}}
	}

	parallelism := cfg.parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > len(cells) {
		parallelism = len(cells)
	}

	reqs := make([]api.CellRequest, 0, len(cells))
	for _, cell := range cells {
		reqs = append(reqs, api.CellRequest{
			Suite:        cfg.suite,
			Cell:         cell,
			Ref:          cfg.ref,
			FlakyOnly:    cfg.flakyOnly,
			ExcludeFlaky: cfg.excludeFlaky,
		})
	}
	q := matrix.NewCellQueue(reqs)

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		results  []api.CaseResult
		firstErr error
	)

	var wg sync.WaitGroup
	wg.Add(parallelism)
	for i := 0; i < parallelism; i++ {
		go func() {
			defer wg.Done()

			for {
				req, ok := q.Next(poolCtx)
				if !ok {
					// Queue drained or pass aborted.
					return
				}

				res, err := g.Runner.RunCell(poolCtx, req)

				mu.Lock()
				results = append(results, res...)
				if err != nil && firstErr == nil {
					firstErr = err
				}
				mu.Unlock()

				if err != nil {
					cancel()
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return results, firstErr
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// blockingFailures filters for failures that gate promotion: not passed,
// not skipped, and not flaky-tagged.
func blockingFailures(results []api.CaseResult) []api.CaseResult {
	var out []api.CaseResult
	for _, c := range results {
		if !c.Passed && !c.Skipped && !c.Flaky {
			out = append(out, c)
		}
	}
	return out
}
