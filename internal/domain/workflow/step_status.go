package workflow

import "fmt"

// StepStatus represents the execution state of one phase instance within a
// workflow session.
type StepStatus string

const (
	// StepStatusPending indicates the step's phase has not been reached yet.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning indicates the step's phase is executing.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusCompleted indicates the phase finished successfully.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusFailed indicates the phase raised an error that was contained.
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusSkipped indicates the phase was bypassed by cancellation.
	StepStatusSkipped StepStatus = "SKIPPED"

	// StepStatusTimeout indicates the phase exceeded its execution deadline.
	StepStatusTimeout StepStatus = "TIMEOUT"
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string { return string(s) }

// IsTerminal reports whether the status permits no further transitions.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusTimeout:
		return true
	default:
		return false
	}
}

// ParseStepStatus converts a string to a StepStatus.
func ParseStepStatus(s string) StepStatus {
	switch s {
	case "PENDING":
		return StepStatusPending
	case "RUNNING":
		return StepStatusRunning
	case "COMPLETED":
		return StepStatusCompleted
	case "FAILED":
		return StepStatusFailed
	case "SKIPPED":
		return StepStatusSkipped
	case "TIMEOUT":
		return StepStatusTimeout
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s StepStatus) ValidateTransition(target StepStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid step status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
// It enforces the step lifecycle rules to prevent invalid state changes.
func (s StepStatus) isValidTransition(target StepStatus) bool {
	switch s {
	case StepStatusPending:
		// From Pending, the phase either begins or cancellation skips it.
		return target == StepStatusRunning || target == StepStatusSkipped
	case StepStatusRunning:
		// From Running, every terminal outcome is reachable.
		return target == StepStatusCompleted || target == StepStatusFailed ||
			target == StepStatusSkipped || target == StepStatusTimeout
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusTimeout:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
