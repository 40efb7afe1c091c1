package api

import (
	"context"
)

// Engine drives release runs through the state machine.
type Engine interface {
	// Prepare executes a full release run synchronously and returns the
	// terminal run record. The returned error is the run's fatal error, if
	// any; the run record is returned in both cases.
	Prepare(ctx context.Context, req ReleaseRequest) (*ReleaseRun, error)

	// Plan computes both audits and the branch-materialization decision
	// without side effects. It is the dry-run counterpart of Prepare.
	Plan(ctx context.Context, req ReleaseRequest) (*ReleaseDecision, error)

	// GetRun looks up a release run by ID.
	// Returns an error if the run is not found.
	GetRun(ctx context.Context, id string) (*ReleaseRun, error)

	// ListRuns returns release runs matching the given options.
	// If options are zero-valued, all runs are returned.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*ReleaseRun, error)

	// Events returns the append-only history for a run in insertion order.
	Events(ctx context.Context, runID string) ([]ReleaseEvent, error)
}
