package domain

import "errors"

// ErrTaskNotFound is returned by stores for unknown task identifiers.
var ErrTaskNotFound = errors.New("task not found")

// Precondition errors raised by capability adapters when their required
// inputs are absent. The orchestrator converts these into a failed task at
// the run boundary rather than letting them escape.
var (
	ErrNoReport   = errors.New("task has no report to work on")
	ErrNoFeedback = errors.New("task has no critique feedback")
)
