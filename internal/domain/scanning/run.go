package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run cannot be located in storage.
var ErrRunNotFound = errors.New("run not found")

// Run tracks the full lifecycle of a single tool execution, from submission
// through a terminal status. It owns the status state machine along with the
// timestamps, exit code, and error text recorded on the way.
type Run struct {
	id      uuid.UUID
	userID  uuid.UUID
	toolID  uuid.UUID
	scopeID *uuid.UUID

	target  string
	params  json.RawMessage
	timeout time.Duration

	status   RunStatus
	exitCode *int
	errorMsg string
	timeline *Timeline
}

// RunOption defines functional options for configuring a new Run.
type RunOption func(*Run)

// WithTimeProvider sets a custom time provider for the run.
func WithTimeProvider(tp TimeProvider) RunOption {
	return func(r *Run) { r.timeline = NewTimeline(tp) }
}

// NewRun creates a Run in PENDING for a freshly submitted execution request.
// The run is not started here; the worker transitions it once the queued job
// is picked up.
func NewRun(
	userID uuid.UUID,
	toolID uuid.UUID,
	scopeID *uuid.UUID,
	target string,
	params json.RawMessage,
	timeout time.Duration,
	opts ...RunOption,
) *Run {
	run := &Run{
		id:       uuid.New(),
		userID:   userID,
		toolID:   toolID,
		scopeID:  scopeID,
		target:   target,
		params:   params,
		timeout:  timeout,
		status:   RunStatusPending,
		timeline: NewTimeline(new(realTimeProvider)),
	}

	for _, opt := range opts {
		opt(run)
	}

	return run
}

// ReconstructRun creates a Run instance from persisted data without enforcing
// creation-time invariants. This should only be used by repositories when
// reconstructing from storage.
func ReconstructRun(
	id uuid.UUID,
	userID uuid.UUID,
	toolID uuid.UUID,
	scopeID *uuid.UUID,
	target string,
	params json.RawMessage,
	timeout time.Duration,
	status RunStatus,
	exitCode *int,
	errorMsg string,
	createdAt time.Time,
	startedAt time.Time,
	completedAt time.Time,
) *Run {
	return &Run{
		id:       id,
		userID:   userID,
		toolID:   toolID,
		scopeID:  scopeID,
		target:   target,
		params:   params,
		timeout:  timeout,
		status:   status,
		exitCode: exitCode,
		errorMsg: errorMsg,
		timeline: ReconstructTimeline(createdAt, startedAt, completedAt, nil),
	}
}

// RunID returns the unique identifier for this run.
func (r *Run) RunID() uuid.UUID { return r.id }

// UserID returns the identifier of the user that submitted the run.
func (r *Run) UserID() uuid.UUID { return r.userID }

// ToolID returns the identifier of the tool this run executes.
func (r *Run) ToolID() uuid.UUID { return r.toolID }

// ScopeID returns the identifier of the authorization scope, if one was supplied.
func (r *Run) ScopeID() *uuid.UUID { return r.scopeID }

// Target returns the target string the tool is aimed at.
func (r *Run) Target() string { return r.target }

// Params returns the caller-supplied parameter bag.
func (r *Run) Params() json.RawMessage { return r.params }

// Timeout returns the execution deadline supplied to the backend.
func (r *Run) Timeout() time.Duration { return r.timeout }

// Status returns the current lifecycle status of the run.
func (r *Run) Status() RunStatus { return r.status }

// ExitCode returns the recorded process exit code, nil until completion.
func (r *Run) ExitCode() *int { return r.exitCode }

// ErrorMessage returns the human-readable error text for failed runs.
func (r *Run) ErrorMessage() string { return r.errorMsg }

// CreatedAt returns the time the run was accepted.
func (r *Run) CreatedAt() time.Time { return r.timeline.CreatedAt() }

// StartedAt returns the time the worker began executing the run.
func (r *Run) StartedAt() time.Time { return r.timeline.StartedAt() }

// CompletedAt returns the time the run reached a terminal status.
func (r *Run) CompletedAt() time.Time { return r.timeline.CompletedAt() }

// Duration returns the wall-clock execution time, zero until the run completes.
func (r *Run) Duration() time.Duration {
	if !r.timeline.HasStarted() || !r.timeline.IsCompleted() {
		return 0
	}
	return r.timeline.CompletedAt().Sub(r.timeline.StartedAt())
}

// UpdateStatus changes the run's status after validating the transition.
// It returns an error if the transition is not valid.
func (r *Run) UpdateStatus(newStatus RunStatus) error {
	if err := r.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	// Mark the start time when transitioning from PENDING to RUNNING as this
	// represents the beginning of actual execution.
	if r.status == RunStatusPending && newStatus == RunStatusRunning {
		r.timeline.MarkStarted()
	}

	// Mark completion time when transitioning to a terminal state.
	if newStatus.IsTerminal() {
		r.timeline.MarkCompleted()
	}

	r.status = newStatus
	return nil
}

// Start transitions the run to RUNNING. It can only be called on runs in
// PENDING state, which makes it double as the dequeue-time guard: a run
// cancelled before pickup fails Start and the worker skips its job.
func (r *Run) Start() error {
	return r.UpdateStatus(RunStatusRunning)
}

// Complete transitions the run to COMPLETED and records the exit code.
// Calling Complete on an already-terminal run is a no-op; an in-flight
// execution that finishes after a cancel must not resurrect the run.
func (r *Run) Complete(exitCode int) error {
	if r.status.IsTerminal() {
		return nil
	}

	if err := r.UpdateStatus(RunStatusCompleted); err != nil {
		return err
	}
	r.exitCode = &exitCode
	return nil
}

// Fail transitions the run to FAILED and records the error text.
// Like Complete, it is a no-op against an already-terminal run.
func (r *Run) Fail(reason string) error {
	if r.status.IsTerminal() {
		return nil
	}

	if err := r.UpdateStatus(RunStatusFailed); err != nil {
		return err
	}
	r.errorMsg = reason
	return nil
}

// MarkTimeout transitions the run to TIMEOUT and records the error text.
// Like Complete, it is a no-op against an already-terminal run.
func (r *Run) MarkTimeout(reason string) error {
	if r.status.IsTerminal() {
		return nil
	}

	if err := r.UpdateStatus(RunStatusTimeout); err != nil {
		return err
	}
	r.errorMsg = reason
	return nil
}

// Cancel transitions the run to CANCELLED in response to an explicit caller
// request. Unlike the worker-driven terminal transitions it is guarded rather
// than idempotent: cancelling an already-terminal run returns a
// RunInvalidStateError so callers learn about their mistake.
func (r *Run) Cancel() error {
	if r.status.IsTerminal() {
		return RunInvalidStateError{
			runID:  r.id,
			status: r.status,
			reason: RunInvalidStateReasonTerminal,
		}
	}

	return r.UpdateStatus(RunStatusCancelled)
}

// RunInvalidStateError is an error type for indicating that a run is in an
// invalid state for the requested operation.
type RunInvalidStateError struct {
	runID  uuid.UUID
	status RunStatus
	reason RunInvalidStateReason
}

// RunInvalidStateReason represents the specific reason why a run state is invalid.
type RunInvalidStateReason string

const (
	// RunInvalidStateReasonTerminal indicates the run already reached a terminal status.
	RunInvalidStateReasonTerminal RunInvalidStateReason = "TERMINAL"

	// RunInvalidStateReasonWrongStatus indicates the run is not in the correct status for the operation.
	RunInvalidStateReasonWrongStatus RunInvalidStateReason = "WRONG_STATUS"
)

// RunID returns the identifier of the run the error refers to.
func (e RunInvalidStateError) RunID() uuid.UUID { return e.runID }

// Status returns the status the run held when the operation was rejected.
func (e RunInvalidStateError) Status() RunStatus { return e.status }

// Error returns a string representation of the error.
func (e RunInvalidStateError) Error() string {
	return fmt.Sprintf("run %s is in invalid state %s: %s", e.runID, e.status, e.reason)
}
