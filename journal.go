package relcut

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relcut/relcut/internal/persistence"
)

// Journal provides read-only access to the run records and events a
// SQLite-backed Engine has written, without requiring a release plan.
// It is what the CLI uses to inspect past runs.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:relcut.db")
//	journal, err := relcut.NewSQLiteJournal(db)
//	runs, err := journal.Runs(ctx, relcut.RunListOptions{})
type Journal struct {
	// store is kept unexported; the public API focuses on the read methods.
	store *persistence.SQLiteStore
}

// NewSQLiteJournal opens a journal over the given database, creating the
// schema if it does not exist yet.
func NewSQLiteJournal(db *sql.DB) (*Journal, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return &Journal{store: store}, nil
}

// Run looks up a single run record by ID.
func (j *Journal) Run(ctx context.Context, id string) (*ReleaseRun, error) {
	run, err := j.store.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("relcut: release run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

// Runs lists run records according to the given options.
func (j *Journal) Runs(ctx context.Context, opts RunListOptions) ([]*ReleaseRun, error) {
	return j.store.ListRuns(persistence.RunFilter{State: opts.State})
}

// Events returns the recorded event history of a run in append order.
func (j *Journal) Events(ctx context.Context, runID string) ([]ReleaseEvent, error) {
	return j.store.ListEvents(ctx, runID)
}
