package workflow

import "fmt"

// SessionStatus represents the lifecycle state of a workflow session.
type SessionStatus string

const (
	// SessionStatusCreated indicates the session is queued behind the
	// single-flight admission gate and has not started.
	SessionStatusCreated SessionStatus = "CREATED"

	// SessionStatusRunning indicates the session holds the global execution
	// slot and its phases are advancing.
	SessionStatusRunning SessionStatus = "RUNNING"

	// SessionStatusPaused indicates the session has been temporarily halted.
	SessionStatusPaused SessionStatus = "PAUSED"

	// SessionStatusCompleted indicates every phase finished and the report
	// was produced.
	SessionStatusCompleted SessionStatus = "COMPLETED"

	// SessionStatusFailed indicates an error escaped a phase's containment.
	SessionStatusFailed SessionStatus = "FAILED"

	// SessionStatusCancelled indicates the session was stopped by an
	// explicit caller request.
	SessionStatusCancelled SessionStatus = "CANCELLED"

	// SessionStatusTimeout indicates the session exceeded its execution
	// deadline.
	SessionStatusTimeout SessionStatus = "TIMEOUT"
)

// String returns the string representation of the SessionStatus.
func (s SessionStatus) String() string { return string(s) }

// IsTerminal reports whether the status permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled, SessionStatusTimeout:
		return true
	default:
		return false
	}
}

// ParseSessionStatus converts a string to a SessionStatus.
func ParseSessionStatus(s string) SessionStatus {
	switch s {
	case "CREATED":
		return SessionStatusCreated
	case "RUNNING":
		return SessionStatusRunning
	case "PAUSED":
		return SessionStatusPaused
	case "COMPLETED":
		return SessionStatusCompleted
	case "FAILED":
		return SessionStatusFailed
	case "CANCELLED":
		return SessionStatusCancelled
	case "TIMEOUT":
		return SessionStatusTimeout
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s SessionStatus) ValidateTransition(target SessionStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid session status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
// It enforces the session lifecycle rules to prevent invalid state changes.
func (s SessionStatus) isValidTransition(target SessionStatus) bool {
	switch s {
	case SessionStatusCreated:
		// From Created, admission grants the slot or cancellation drops the
		// session from the queue.
		return target == SessionStatusRunning || target == SessionStatusCancelled
	case SessionStatusRunning:
		// From Running, the session can pause or reach any terminal outcome.
		return target == SessionStatusPaused || target == SessionStatusCompleted ||
			target == SessionStatusFailed || target == SessionStatusCancelled ||
			target == SessionStatusTimeout
	case SessionStatusPaused:
		// From Paused, the session resumes or is cancelled.
		return target == SessionStatusRunning || target == SessionStatusCancelled
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled, SessionStatusTimeout:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
