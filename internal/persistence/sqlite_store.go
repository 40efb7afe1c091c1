package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/relcut/relcut/pkg/api"
)

// SQLiteStore is a RunStore and EventStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ RunStore = (*SQLiteStore)(nil)

var _ EventStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS release_runs (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			version TEXT NOT NULL,
			source_branch TEXT NOT NULL,
			target_branch TEXT NOT NULL,
			trial_run INTEGER NOT NULL,
			nightly INTEGER NOT NULL,
			requested_sha TEXT,
			branch_name TEXT,
			branch_created INTEGER NOT NULL,
			changelog_generated INTEGER NOT NULL,
			version_bumped INTEGER NOT NULL,
			final_sha TEXT,
			changelog_path TEXT,
			version_audit BLOB,
			changelog_audit BLOB,
			flaky_failures BLOB,
			error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS release_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			stage TEXT,
			version TEXT,
			detail TEXT
		);
		CREATE INDEX IF NOT EXISTS release_events_run ON release_events(run_id);`,
	)
	return err
}

func (s *SQLiteStore) SaveRun(run *api.ReleaseRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO release_runs (
			id, state, version, source_branch, target_branch, trial_run, nightly,
			requested_sha, branch_name, branch_created, changelog_generated,
			version_bumped, final_sha, changelog_path, version_audit,
			changelog_audit, flaky_failures, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return err
}

func (s *SQLiteStore) UpdateRun(run *api.ReleaseRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	// Shift id to the end for the WHERE clause.
	args = append(args[1:], args[0])

	res, err := s.db.Exec(`
		UPDATE release_runs
		SET state = ?, version = ?, source_branch = ?, target_branch = ?,
			trial_run = ?, nightly = ?, requested_sha = ?, branch_name = ?,
			branch_created = ?, changelog_generated = ?, version_bumped = ?,
			final_sha = ?, changelog_path = ?, version_audit = ?,
			changelog_audit = ?, flaky_failures = ?, error = ?,
			started_at = ?, finished_at = ?
		WHERE id = ?`,
		args...,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *SQLiteStore) GetRun(id string) (*api.ReleaseRun, error) {
	row := s.db.QueryRow(`
		SELECT id, state, version, source_branch, target_branch, trial_run,
			nightly, requested_sha, branch_name, branch_created,
			changelog_generated, version_bumped, final_sha, changelog_path,
			version_audit, changelog_audit, flaky_failures, error,
			started_at, finished_at
		FROM release_runs
		WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(filter RunFilter) ([]*api.ReleaseRun, error) {
	query := `
		SELECT id, state, version, source_branch, target_branch, trial_run,
			nightly, requested_sha, branch_name, branch_created,
			changelog_generated, version_bumped, final_sha, changelog_path,
			version_audit, changelog_audit, flaky_failures, error,
			started_at, finished_at
		FROM release_runs`
	var args []any
	var clauses []string

	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(filter.State))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.ReleaseRun

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev api.ReleaseEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO release_events (run_id, at, type, stage, version, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		ev.At.UnixNano(),
		string(ev.Type),
		ev.Stage,
		ev.Version,
		ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]api.ReleaseEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, stage, version, detail
		FROM release_events
		WHERE run_id = ?
		ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []api.ReleaseEvent

	for rows.Next() {
		var ev api.ReleaseEvent
		var at int64
		var typ string

		if err := rows.Scan(&ev.RunID, &at, &typ, &ev.Stage, &ev.Version, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, at)
		ev.Type = api.EventType(typ)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func runArgs(run *api.ReleaseRun) ([]any, error) {
	versionAudit, err := EncodeValue(run.VersionAudit)
	if err != nil {
		return nil, err
	}

	changelogAudit, err := EncodeValue(run.ChangelogAudit)
	if err != nil {
		return nil, err
	}

	flaky, err := EncodeValue(run.FlakyFailures)
	if err != nil {
		return nil, err
	}

	errStr := ""
	if run.Err != nil {
		errStr = run.Err.Error()
	}

	return []any{
		run.ID,
		string(run.State),
		run.Request.Version,
		run.Request.SourceBranch,
		run.Request.TargetBranch,
		boolInt(run.Request.TrialRun),
		boolInt(run.Request.Nightly),
		run.RequestedSHA,
		run.Scratch.Name,
		boolInt(run.Scratch.Created),
		boolInt(run.ChangelogGenerated),
		boolInt(run.VersionBumped),
		run.Outcome.FinalCommitSHA,
		run.Outcome.ChangelogPath,
		versionAudit,
		changelogAudit,
		flaky,
		errStr,
		run.StartedAt.UnixNano(),
		run.FinishedAt.UnixNano(),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.ReleaseRun, error) {
	var run api.ReleaseRun
	var state string
	var trial, nightly, branchCreated, changelogGenerated, versionBumped int
	var versionAudit, changelogAudit, flaky []byte
	var errStr sql.NullString
	var startedAt, finishedAt int64

	if err := row.Scan(
		&run.ID,
		&state,
		&run.Request.Version,
		&run.Request.SourceBranch,
		&run.Request.TargetBranch,
		&trial,
		&nightly,
		&run.RequestedSHA,
		&run.Scratch.Name,
		&branchCreated,
		&changelogGenerated,
		&versionBumped,
		&run.Outcome.FinalCommitSHA,
		&run.Outcome.ChangelogPath,
		&versionAudit,
		&changelogAudit,
		&flaky,
		&errStr,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	run.State = api.State(state)
	run.Request.TrialRun = trial != 0
	run.Request.Nightly = nightly != 0
	run.Scratch.Created = branchCreated != 0
	run.ChangelogGenerated = changelogGenerated != 0
	run.VersionBumped = versionBumped != 0
	run.StartedAt = time.Unix(0, startedAt)
	run.FinishedAt = time.Unix(0, finishedAt)

	va, err := DecodeValue[api.VersionAudit](versionAudit)
	if err != nil {
		return nil, err
	}
	run.VersionAudit = va

	ca, err := DecodeValue[api.ChangelogAudit](changelogAudit)
	if err != nil {
		return nil, err
	}
	run.ChangelogAudit = ca

	ff, err := DecodeValue[[]api.CaseResult](flaky)
	if err != nil {
		return nil, err
	}
	run.FlakyFailures = ff

	if errStr.Valid && errStr.String != "" {
		run.Err = errors.New(errStr.String)
	}

	return &run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
