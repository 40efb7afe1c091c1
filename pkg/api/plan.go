package api

import (
	"errors"
	"time"
)

// RetryPolicy controls how transient git pushes are retried.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Merges are never retried regardless of policy; a conflict always needs an
// operator.
type RetryPolicy struct {
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt. Values <= 0 default
	// to 2.0.
	BackoffMultiplier float64
}

// ReleasePlan wires the collaborators and verification settings used by an
// Engine. A plan is immutable once handed to an engine; build one with the
// relcut.NewPlan builder.
type ReleasePlan struct {
	// Collaborators. Host, Versions, Metadata and Changelog are required.
	Host      SourceHost
	Versions  VersionParser
	Metadata  MetadataStore
	Changelog ChangelogTool

	// Tests may be nil, which disables the verification gate entirely.
	Tests TestRunner

	// UnitMatrix lists the cells the unit suite fans out over. An empty
	// matrix runs the suite once in a zero-valued cell.
	UnitMatrix []MatrixCell

	// IntegrationMatrix lists the cells for the integration suite. The
	// integration suite only runs when EnvSetupPath is configured.
	IntegrationMatrix []MatrixCell

	// EnvSetupPath points to the integration environment bootstrap. When
	// empty, the integration suite (and its flaky pass) is skipped.
	EnvSetupPath string

	// Parallelism bounds concurrent matrix cells in the primary passes.
	// Values <= 0 default to 1.
	Parallelism int

	// FlakyParallelism bounds concurrency of the flaky pass, which runs
	// reduced to avoid resource contention. Values <= 0 default to 1.
	FlakyParallelism int

	// PushRetry, if set, retries transient branch pushes.
	PushRetry *RetryPolicy
}

// Validate checks that all required collaborators are present.
func (p *ReleasePlan) Validate() error {
	switch {
	case p.Host == nil:
		return errors.New("release plan: source host is required")
	case p.Versions == nil:
		return errors.New("release plan: version parser is required")
	case p.Metadata == nil:
		return errors.New("release plan: metadata store is required")
	case p.Changelog == nil:
		return errors.New("release plan: changelog tool is required")
	}
	return nil
}
