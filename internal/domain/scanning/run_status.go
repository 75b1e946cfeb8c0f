package scanning

import (
	"errors"
	"fmt"
)

// RunStatus represents the lifecycle state of a single scan run. It enables
// tracking of run progress from submission through terminal completion.
type RunStatus string

// ErrRunStatusUnknown is returned when a run status is unknown.
var ErrRunStatusUnknown = errors.New("run status unknown")

const (
	// RunStatusPending indicates a run has been accepted and queued but not yet started.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning indicates the worker is actively executing the run.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted indicates the run finished successfully.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed indicates the run encountered an unrecoverable error.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusTimeout indicates the run exceeded its execution deadline.
	RunStatusTimeout RunStatus = "TIMEOUT"

	// RunStatusCancelled indicates the run was stopped by an explicit caller request.
	RunStatusCancelled RunStatus = "CANCELLED"

	// RunStatusUnspecified is used when a run status is unknown.
	RunStatusUnspecified RunStatus = "UNSPECIFIED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string { return string(s) }

// IsTerminal reports whether the status permits no further transitions.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusTimeout, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseRunStatus converts a string to a RunStatus.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "PENDING":
		return RunStatusPending
	case "RUNNING":
		return RunStatusRunning
	case "COMPLETED":
		return RunStatusCompleted
	case "FAILED":
		return RunStatusFailed
	case "TIMEOUT":
		return RunStatusTimeout
	case "CANCELLED":
		return RunStatusCancelled
	default:
		return RunStatusUnspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s RunStatus) ValidateTransition(target RunStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid run status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
// It enforces the run lifecycle rules to prevent invalid state changes.
func (s RunStatus) isValidTransition(target RunStatus) bool {
	switch s {
	case RunStatusPending:
		// From Pending, the worker can pick the run up or a caller can cancel
		// it before pickup.
		return target == RunStatusRunning || target == RunStatusCancelled
	case RunStatusRunning:
		// From Running, every terminal outcome is reachable.
		return target == RunStatusCompleted || target == RunStatusFailed ||
			target == RunStatusTimeout || target == RunStatusCancelled
	case RunStatusCompleted, RunStatusFailed, RunStatusTimeout, RunStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
