package persistence

import (
	"context"
	"errors"

	"github.com/relcut/relcut/pkg/api"
)

var (
	// ErrRunNotFound is returned when a release run is not found.
	ErrRunNotFound = errors.New("release run not found")
)

// RunFilter is used to select runs from the store.
// Empty string / zero state mean "no filter" for that field.
type RunFilter struct {
	State api.State
}

// RunStore handles storage of release run records.
type RunStore interface {
	SaveRun(run *api.ReleaseRun) error
	UpdateRun(run *api.ReleaseRun) error
	GetRun(id string) (*api.ReleaseRun, error)
	ListRuns(filter RunFilter) ([]*api.ReleaseRun, error)
}

// EventStore is an append-only history store for release run events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.ReleaseEvent) error
	ListEvents(ctx context.Context, runID string) ([]api.ReleaseEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.ReleaseEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.ReleaseEvent, error) {
	return nil, nil
}

// Persistence bundles the store interfaces so the engine can depend on a
// single abstraction.
type Persistence struct {
	Runs   RunStore
	Events EventStore
}
