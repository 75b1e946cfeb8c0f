package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
)

// Event types relevant to Runs:
const (
	EventTypeRunJobQueued events.EventType = "RunJobQueued"

	EventTypeRunStarted   events.EventType = "RunStarted"
	EventTypeRunCompleted events.EventType = "RunCompleted"
	EventTypeRunFailed    events.EventType = "RunFailed"
	EventTypeRunTimedOut  events.EventType = "RunTimedOut"
	EventTypeRunCancelled events.EventType = "RunCancelled"
)

// RunJobQueuedEvent is the durable job record enqueued when a run is
// submitted. The worker consumes these in FIFO order.
type RunJobQueuedEvent struct {
	occurredAt  time.Time
	RunID       uuid.UUID
	Target      string
	RequestedBy uuid.UUID
}

// NewRunJobQueuedEvent creates a new run job queued event.
func NewRunJobQueuedEvent(runID uuid.UUID, target string, requestedBy uuid.UUID) RunJobQueuedEvent {
	return RunJobQueuedEvent{
		occurredAt:  time.Now(),
		RunID:       runID,
		Target:      target,
		RequestedBy: requestedBy,
	}
}

func (e RunJobQueuedEvent) EventType() events.EventType { return EventTypeRunJobQueued }
func (e RunJobQueuedEvent) OccurredAt() time.Time       { return e.occurredAt }

// RunStartedEvent signals the worker picked up a run and began execution.
type RunStartedEvent struct {
	occurredAt time.Time
	RunID      uuid.UUID
	Target     string
}

// NewRunStartedEvent creates a new run started event.
func NewRunStartedEvent(runID uuid.UUID, target string) RunStartedEvent {
	return RunStartedEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		Target:     target,
	}
}

func (e RunStartedEvent) EventType() events.EventType { return EventTypeRunStarted }
func (e RunStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// RunCompletedEvent signals a run finished successfully.
type RunCompletedEvent struct {
	occurredAt time.Time
	RunID      uuid.UUID
	ExitCode   int
}

// NewRunCompletedEvent creates a new run completed event.
func NewRunCompletedEvent(runID uuid.UUID, exitCode int) RunCompletedEvent {
	return RunCompletedEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		ExitCode:   exitCode,
	}
}

func (e RunCompletedEvent) EventType() events.EventType { return EventTypeRunCompleted }
func (e RunCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// RunFailedEvent signals a run encountered an unrecoverable error.
type RunFailedEvent struct {
	occurredAt time.Time
	RunID      uuid.UUID
	Reason     string
}

// NewRunFailedEvent creates a new run failed event.
func NewRunFailedEvent(runID uuid.UUID, reason string) RunFailedEvent {
	return RunFailedEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		Reason:     reason,
	}
}

func (e RunFailedEvent) EventType() events.EventType { return EventTypeRunFailed }
func (e RunFailedEvent) OccurredAt() time.Time       { return e.occurredAt }

// RunTimedOutEvent signals a run exceeded its execution deadline.
type RunTimedOutEvent struct {
	occurredAt time.Time
	RunID      uuid.UUID
	Reason     string
}

// NewRunTimedOutEvent creates a new run timed out event.
func NewRunTimedOutEvent(runID uuid.UUID, reason string) RunTimedOutEvent {
	return RunTimedOutEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		Reason:     reason,
	}
}

func (e RunTimedOutEvent) EventType() events.EventType { return EventTypeRunTimedOut }
func (e RunTimedOutEvent) OccurredAt() time.Time       { return e.occurredAt }

// RunCancelledEvent signals a run was stopped by an explicit caller request.
type RunCancelledEvent struct {
	occurredAt  time.Time
	RunID       uuid.UUID
	RequestedBy uuid.UUID
}

// NewRunCancelledEvent creates a new run cancelled event.
func NewRunCancelledEvent(runID uuid.UUID, requestedBy uuid.UUID) RunCancelledEvent {
	return RunCancelledEvent{
		occurredAt:  time.Now(),
		RunID:       runID,
		RequestedBy: requestedBy,
	}
}

func (e RunCancelledEvent) EventType() events.EventType { return EventTypeRunCancelled }
func (e RunCancelledEvent) OccurredAt() time.Time       { return e.occurredAt }
