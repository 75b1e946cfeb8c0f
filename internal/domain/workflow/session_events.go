package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
)

// Event types relevant to workflow sessions:
const (
	EventTypeSessionQueued    events.EventType = "SessionQueued"
	EventTypeSessionStarted   events.EventType = "SessionStarted"
	EventTypeSessionCompleted events.EventType = "SessionCompleted"
	EventTypeSessionFailed    events.EventType = "SessionFailed"
	EventTypeSessionCancelled events.EventType = "SessionCancelled"

	EventTypePhaseStarted   events.EventType = "PhaseStarted"
	EventTypePhaseCompleted events.EventType = "PhaseCompleted"
)

// SessionQueuedEvent signals admission control deferred a session behind the
// single-flight gate.
type SessionQueuedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Position   int
}

// NewSessionQueuedEvent creates a new session queued event.
func NewSessionQueuedEvent(sessionID uuid.UUID, position int) SessionQueuedEvent {
	return SessionQueuedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Position:   position,
	}
}

func (e SessionQueuedEvent) EventType() events.EventType { return EventTypeSessionQueued }
func (e SessionQueuedEvent) OccurredAt() time.Time       { return e.occurredAt }

// SessionStartedEvent signals a session won the execution slot and began its
// first phase.
type SessionStartedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Target     string
}

// NewSessionStartedEvent creates a new session started event.
func NewSessionStartedEvent(sessionID uuid.UUID, target string) SessionStartedEvent {
	return SessionStartedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Target:     target,
	}
}

func (e SessionStartedEvent) EventType() events.EventType { return EventTypeSessionStarted }
func (e SessionStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// SessionCompletedEvent signals a session finished all six phases.
type SessionCompletedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	RiskScore  int
}

// NewSessionCompletedEvent creates a new session completed event.
func NewSessionCompletedEvent(sessionID uuid.UUID, riskScore int) SessionCompletedEvent {
	return SessionCompletedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		RiskScore:  riskScore,
	}
}

func (e SessionCompletedEvent) EventType() events.EventType { return EventTypeSessionCompleted }
func (e SessionCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// SessionFailedEvent signals an error escaped a phase's containment and
// failed the session.
type SessionFailedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Reason     string
}

// NewSessionFailedEvent creates a new session failed event.
func NewSessionFailedEvent(sessionID uuid.UUID, reason string) SessionFailedEvent {
	return SessionFailedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Reason:     reason,
	}
}

func (e SessionFailedEvent) EventType() events.EventType { return EventTypeSessionFailed }
func (e SessionFailedEvent) OccurredAt() time.Time       { return e.occurredAt }

// SessionCancelledEvent signals a session was cancelled by a caller.
type SessionCancelledEvent struct {
	occurredAt  time.Time
	SessionID   uuid.UUID
	RequestedBy uuid.UUID
}

// NewSessionCancelledEvent creates a new session cancelled event.
func NewSessionCancelledEvent(sessionID uuid.UUID, requestedBy uuid.UUID) SessionCancelledEvent {
	return SessionCancelledEvent{
		occurredAt:  time.Now(),
		SessionID:   sessionID,
		RequestedBy: requestedBy,
	}
}

func (e SessionCancelledEvent) EventType() events.EventType { return EventTypeSessionCancelled }
func (e SessionCancelledEvent) OccurredAt() time.Time       { return e.occurredAt }

// PhaseStartedEvent signals one phase of a session began executing.
type PhaseStartedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Phase      Phase
}

// NewPhaseStartedEvent creates a new phase started event.
func NewPhaseStartedEvent(sessionID uuid.UUID, phase Phase) PhaseStartedEvent {
	return PhaseStartedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Phase:      phase,
	}
}

func (e PhaseStartedEvent) EventType() events.EventType { return EventTypePhaseStarted }
func (e PhaseStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// PhaseCompletedEvent signals one phase of a session reached a terminal step
// status.
type PhaseCompletedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Phase      Phase
	StepStatus StepStatus
}

// NewPhaseCompletedEvent creates a new phase completed event.
func NewPhaseCompletedEvent(sessionID uuid.UUID, phase Phase, stepStatus StepStatus) PhaseCompletedEvent {
	return PhaseCompletedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		Phase:      phase,
		StepStatus: stepStatus,
	}
}

func (e PhaseCompletedEvent) EventType() events.EventType { return EventTypePhaseCompleted }
func (e PhaseCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }
