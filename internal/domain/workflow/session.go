package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session cannot be located in storage.
var ErrSessionNotFound = errors.New("workflow session not found")

// Session is the aggregate root of one composite six-phase engagement. It
// owns its six steps, the pointer to the currently executing phase, and the
// accumulated risk score. Exactly one run is bound to the session for the
// backend work its phases delegate.
type Session struct {
	id     uuid.UUID
	userID uuid.UUID
	runID  uuid.UUID

	name      string
	target    string
	objective Objective
	maxSteps  int

	status       SessionStatus
	currentPhase Phase
	riskScore    int
	errorMsg     string

	steps    []*Step
	timeline *Timeline
}

// SessionOption defines functional options for configuring a new Session.
type SessionOption func(*Session)

// WithSessionTimeProvider sets a custom time provider for the session.
func WithSessionTimeProvider(tp TimeProvider) SessionOption {
	return func(s *Session) { s.timeline = NewTimeline(tp) }
}

// NewSession creates a CREATED Session together with its six PENDING steps.
// The bound run is created by the caller and referenced here; the session
// does not start until admission control grants the global execution slot.
func NewSession(
	userID uuid.UUID,
	runID uuid.UUID,
	name string,
	target string,
	objective Objective,
	maxSteps int,
	opts ...SessionOption,
) *Session {
	session := &Session{
		id:        uuid.New(),
		userID:    userID,
		runID:     runID,
		name:      name,
		target:    target,
		objective: objective,
		maxSteps:  maxSteps,
		status:    SessionStatusCreated,
		timeline:  NewTimeline(new(realTimeProvider)),
	}

	session.steps = make([]*Step, 0, TotalPhases)
	for _, phase := range Phases() {
		session.steps = append(session.steps, NewStep(session.id, phase))
	}

	for _, opt := range opts {
		opt(session)
	}

	return session
}

// ReconstructSession creates a Session instance from persisted data.
// This should only be used by repositories when reconstructing from storage.
func ReconstructSession(
	id uuid.UUID,
	userID uuid.UUID,
	runID uuid.UUID,
	name string,
	target string,
	objective Objective,
	maxSteps int,
	status SessionStatus,
	currentPhase Phase,
	riskScore int,
	errorMsg string,
	createdAt time.Time,
	startedAt time.Time,
	completedAt time.Time,
	steps []*Step,
) *Session {
	return &Session{
		id:           id,
		userID:       userID,
		runID:        runID,
		name:         name,
		target:       target,
		objective:    objective,
		maxSteps:     maxSteps,
		status:       status,
		currentPhase: currentPhase,
		riskScore:    riskScore,
		errorMsg:     errorMsg,
		steps:        steps,
		timeline:     ReconstructTimeline(createdAt, startedAt, completedAt),
	}
}

// SessionID returns the unique identifier for this session.
func (s *Session) SessionID() uuid.UUID { return s.id }

// UserID returns the identifier of the user that created the session.
func (s *Session) UserID() uuid.UUID { return s.userID }

// RunID returns the identifier of the session's bound run.
func (s *Session) RunID() uuid.UUID { return s.runID }

// Name returns the caller-supplied display name of the session.
func (s *Session) Name() string { return s.name }

// Target returns the target string the engagement is aimed at.
func (s *Session) Target() string { return s.target }

// Objective returns the engagement objective.
func (s *Session) Objective() Objective { return s.objective }

// MaxSteps returns the cap on backend sub-invocations per phase.
func (s *Session) MaxSteps() int { return s.maxSteps }

// Status returns the current lifecycle status of the session.
func (s *Session) Status() SessionStatus { return s.status }

// CurrentPhase returns the phase pointer; zero until the session starts.
func (s *Session) CurrentPhase() Phase { return s.currentPhase }

// RiskScore returns the accumulated risk score, 0 to 100.
func (s *Session) RiskScore() int { return s.riskScore }

// ErrorMessage returns the human-readable error text for failed sessions.
func (s *Session) ErrorMessage() string { return s.errorMsg }

// Steps returns the session's steps in phase order.
func (s *Session) Steps() []*Step { return s.steps }

// Step returns the step instantiating the given phase, or nil.
func (s *Session) Step(phase Phase) *Step {
	for _, step := range s.steps {
		if step.Phase() == phase {
			return step
		}
	}
	return nil
}

// CreatedAt returns the time the session was created.
func (s *Session) CreatedAt() time.Time { return s.timeline.CreatedAt() }

// StartedAt returns the time admission granted the session the execution slot.
func (s *Session) StartedAt() time.Time { return s.timeline.StartedAt() }

// CompletedAt returns the time the session reached a terminal status.
func (s *Session) CompletedAt() time.Time { return s.timeline.CompletedAt() }

// Progress returns the percentage of completed steps, 0 to 100.
func (s *Session) Progress() float64 {
	if len(s.steps) == 0 {
		return 0
	}
	completed := 0
	for _, step := range s.steps {
		if step.Status() == StepStatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(s.steps)) * 100
}

// UpdateStatus changes the session's status after validating the transition.
// It returns an error if the transition is not valid.
func (s *Session) UpdateStatus(newStatus SessionStatus) error {
	if err := s.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	if s.status == SessionStatusCreated && newStatus == SessionStatusRunning {
		s.timeline.MarkStarted()
	}
	if newStatus.IsTerminal() {
		s.timeline.MarkCompleted()
	}

	s.status = newStatus
	return nil
}

// Start transitions the session to RUNNING and points it at the first phase.
// Only the admission gate calls this, after winning the conditional claim.
func (s *Session) Start() error {
	if err := s.UpdateStatus(SessionStatusRunning); err != nil {
		return err
	}
	s.currentPhase = FirstPhase()
	return nil
}

// AdvancePhase moves the phase pointer to its successor in the transition
// table, returning false when the session is already at the final phase.
func (s *Session) AdvancePhase() bool {
	next, ok := s.currentPhase.Next()
	if !ok {
		return false
	}
	s.currentPhase = next
	return true
}

// AddRisk accumulates a finding's severity weight into the session risk
// score, capping at 100.
func (s *Session) AddRisk(weight int) {
	s.riskScore += weight
	if s.riskScore > 100 {
		s.riskScore = 100
	}
}

// Complete transitions the session to COMPLETED once every phase has run.
func (s *Session) Complete() error {
	return s.UpdateStatus(SessionStatusCompleted)
}

// Fail transitions the session to FAILED with the escaped error's text.
// Contained phase errors never reach here; only an error escaping a phase's
// own handler fails the session.
func (s *Session) Fail(reason string) error {
	if err := s.UpdateStatus(SessionStatusFailed); err != nil {
		return err
	}
	s.errorMsg = reason
	return nil
}

// MarkTimeout transitions the session to TIMEOUT with the deadline error's text.
func (s *Session) MarkTimeout(reason string) error {
	if err := s.UpdateStatus(SessionStatusTimeout); err != nil {
		return err
	}
	s.errorMsg = reason
	return nil
}

// Cancel transitions the session to CANCELLED, marking every step that has
// not reached a terminal status SKIPPED. Cancelling an already-terminal
// session returns a SessionInvalidStateError so callers learn about their
// mistake.
func (s *Session) Cancel() error {
	if s.status.IsTerminal() {
		return SessionInvalidStateError{
			sessionID: s.id,
			status:    s.status,
			reason:    SessionInvalidStateReasonTerminal,
		}
	}

	for _, step := range s.steps {
		if err := step.Skip(); err != nil {
			return fmt.Errorf("skipping step %s: %w", step.Phase(), err)
		}
	}

	return s.UpdateStatus(SessionStatusCancelled)
}

// SessionInvalidStateError is an error type for indicating that a session is
// in an invalid state for the requested operation.
type SessionInvalidStateError struct {
	sessionID uuid.UUID
	status    SessionStatus
	reason    SessionInvalidStateReason
}

// SessionInvalidStateReason represents the specific reason why a session state is invalid.
type SessionInvalidStateReason string

const (
	// SessionInvalidStateReasonTerminal indicates the session already reached a terminal status.
	SessionInvalidStateReasonTerminal SessionInvalidStateReason = "TERMINAL"

	// SessionInvalidStateReasonWrongStatus indicates the session is not in the correct status for the operation.
	SessionInvalidStateReasonWrongStatus SessionInvalidStateReason = "WRONG_STATUS"
)

// SessionID returns the identifier of the session the error refers to.
func (e SessionInvalidStateError) SessionID() uuid.UUID { return e.sessionID }

// Status returns the status the session held when the operation was rejected.
func (e SessionInvalidStateError) Status() SessionStatus { return e.status }

// Error returns a string representation of the error.
func (e SessionInvalidStateError) Error() string {
	return fmt.Sprintf("session %s is in invalid state %s: %s", e.sessionID, e.status, e.reason)
}
