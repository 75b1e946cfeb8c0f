package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Step is one phase instance within a workflow session. Phase order is fixed
// across steps; each step transitions independently but only ever forward.
type Step struct {
	id        uuid.UUID
	sessionID uuid.UUID
	phase     Phase

	status          StepStatus
	errorMsg        string
	impact          string
	remediationHint string

	timeline *Timeline
}

// NewStep creates a PENDING Step for the given phase of a session.
func NewStep(sessionID uuid.UUID, phase Phase) *Step {
	return &Step{
		id:        uuid.New(),
		sessionID: sessionID,
		phase:     phase,
		status:    StepStatusPending,
		timeline:  NewTimeline(new(realTimeProvider)),
	}
}

// ReconstructStep creates a Step instance from persisted data.
// This should only be used by repositories when reconstructing from storage.
func ReconstructStep(
	id uuid.UUID,
	sessionID uuid.UUID,
	phase Phase,
	status StepStatus,
	errorMsg string,
	impact string,
	remediationHint string,
	createdAt time.Time,
	startedAt time.Time,
	completedAt time.Time,
) *Step {
	return &Step{
		id:              id,
		sessionID:       sessionID,
		phase:           phase,
		status:          status,
		errorMsg:        errorMsg,
		impact:          impact,
		remediationHint: remediationHint,
		timeline:        ReconstructTimeline(createdAt, startedAt, completedAt),
	}
}

// StepID returns the unique identifier for this step.
func (s *Step) StepID() uuid.UUID { return s.id }

// SessionID returns the identifier of the owning session.
func (s *Step) SessionID() uuid.UUID { return s.sessionID }

// Phase returns the phase this step instantiates.
func (s *Step) Phase() Phase { return s.phase }

// Status returns the current execution status of the step.
func (s *Step) Status() StepStatus { return s.status }

// ErrorMessage returns the contained error text for failed steps.
func (s *Step) ErrorMessage() string { return s.errorMsg }

// Impact returns the impact summary recorded for the step.
func (s *Step) Impact() string { return s.impact }

// RemediationHint returns the remediation hint recorded for the step.
func (s *Step) RemediationHint() string { return s.remediationHint }

// CreatedAt returns the time the step was created with its session.
func (s *Step) CreatedAt() time.Time { return s.timeline.CreatedAt() }

// StartedAt returns the time the step's phase began executing.
func (s *Step) StartedAt() time.Time { return s.timeline.StartedAt() }

// CompletedAt returns the time the step reached a terminal status.
func (s *Step) CompletedAt() time.Time { return s.timeline.CompletedAt() }

// UpdateStatus changes the step's status after validating the transition.
// It returns an error if the transition is not valid.
func (s *Step) UpdateStatus(newStatus StepStatus) error {
	if err := s.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	if s.status == StepStatusPending && newStatus == StepStatusRunning {
		s.timeline.MarkStarted()
	}
	if newStatus.IsTerminal() {
		s.timeline.MarkCompleted()
	}

	s.status = newStatus
	return nil
}

// Start transitions the step to RUNNING at the beginning of its phase.
func (s *Step) Start() error {
	return s.UpdateStatus(StepStatusRunning)
}

// Complete transitions the step to COMPLETED and records the phase's impact
// summary and remediation hint.
func (s *Step) Complete(impact, remediationHint string) error {
	if err := s.UpdateStatus(StepStatusCompleted); err != nil {
		return err
	}
	s.impact = impact
	s.remediationHint = remediationHint
	return nil
}

// Fail transitions the step to FAILED with the contained error's text.
// The session keeps advancing; a failed step never halts the sequence.
func (s *Step) Fail(errorMsg string) error {
	if err := s.UpdateStatus(StepStatusFailed); err != nil {
		return err
	}
	s.errorMsg = errorMsg
	return nil
}

// MarkTimeout transitions the step to TIMEOUT with the deadline error's text.
func (s *Step) MarkTimeout(errorMsg string) error {
	if err := s.UpdateStatus(StepStatusTimeout); err != nil {
		return err
	}
	s.errorMsg = errorMsg
	return nil
}

// Skip marks a not-yet-finished step SKIPPED during session cancellation.
// Skipping an already-terminal step is a no-op so cancellation can sweep the
// whole step list without caring which phases already finished.
func (s *Step) Skip() error {
	if s.status.IsTerminal() {
		return nil
	}
	return s.UpdateStatus(StepStatusSkipped)
}
