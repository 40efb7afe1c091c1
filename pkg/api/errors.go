package api

import (
	"errors"
	"fmt"
	"strings"
)

// The error taxonomy is deliberately small. Every member is fatal: it halts
// forward progress of the run without rolling back already-pushed scratch
// commits.

// ParseError indicates a malformed version string. It is surfaced before
// any mutation happens.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// NewParseError constructs a ParseError for the given raw input.
func NewParseError(input, reason string) error {
	return &ParseError{Input: input, Reason: reason}
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}

// GeneratorError indicates that a changelog generation step was attempted
// but the expected output file is absent afterwards. This signals a broken
// generator or template rather than bad input.
type GeneratorError struct {
	Path string
}

func (e *GeneratorError) Error() string {
	return "changelog generation produced no file at " + e.Path
}

// IsGeneratorError reports whether err is (or wraps) a GeneratorError.
func IsGeneratorError(err error) bool {
	var g *GeneratorError
	return errors.As(err, &g)
}

// TestFailureError indicates one or more non-flaky, non-skipped test
// failures. Flaky-tagged failures are recorded on the run instead and never
// produce this error.
type TestFailureError struct {
	Suite    Suite
	Failures []CaseResult
}

func (e *TestFailureError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, c := range e.Failures {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("%s suite: %d test failure(s): %s",
		e.Suite, len(e.Failures), strings.Join(names, ", "))
}

// IsTestFailure reports whether err is (or wraps) a TestFailureError.
func IsTestFailure(err error) bool {
	var t *TestFailureError
	return errors.As(err, &t)
}

// MergeConflictError indicates that promoting the scratch branch into the
// target conflicted. The pipeline never auto-retries a merge; resolution is
// left to the operator.
type MergeConflictError struct {
	From   string
	Into   string
	Detail string
}

func (e *MergeConflictError) Error() string {
	msg := fmt.Sprintf("merge conflict merging %s into %s", e.From, e.Into)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsMergeConflict reports whether err is (or wraps) a MergeConflictError.
func IsMergeConflict(err error) bool {
	var m *MergeConflictError
	return errors.As(err, &m)
}
