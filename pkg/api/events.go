package api

import "time"

// EventType identifies a release run history event.
type EventType string

const (
	EventRunStarted  EventType = "run.started"
	EventRunResolved EventType = "run.resolved"
	EventRunAborted  EventType = "run.aborted"

	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"

	EventBranchCreated      EventType = "branch.created"
	EventBranchDeleted      EventType = "branch.deleted"
	EventChangelogGenerated EventType = "changelog.generated"
	EventVersionBumped      EventType = "version.bumped"
	EventMergeCompleted     EventType = "merge.completed"
	EventFlakyRecorded      EventType = "flaky.recorded"
)

// ReleaseEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type ReleaseEvent struct {
	RunID string
	At    time.Time
	Type  EventType

	// Optional context.
	Stage   string
	Version string

	// Small, human-oriented details (e.g. branch name, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
