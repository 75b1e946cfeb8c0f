package scanning

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StreamEventType identifies the kind of message flowing over a run's live
// event channel.
type StreamEventType string

const (
	// StreamEventTypeInit acknowledges a new subscriber connection.
	StreamEventTypeInit StreamEventType = "init"

	// StreamEventTypeOutput carries a chunk of accumulated tool output.
	StreamEventTypeOutput StreamEventType = "output"

	// StreamEventTypeToolStart signals the backend began a sub-invocation.
	StreamEventTypeToolStart StreamEventType = "tool_start"

	// StreamEventTypeToolComplete signals a sub-invocation finished.
	StreamEventTypeToolComplete StreamEventType = "tool_complete"

	// StreamEventTypeProgress carries a progress message from the backend.
	StreamEventTypeProgress StreamEventType = "progress"

	// StreamEventTypeCompleted signals the run reached COMPLETED.
	StreamEventTypeCompleted StreamEventType = "completed"

	// StreamEventTypeFailed signals the run reached FAILED, TIMEOUT, or CANCELLED.
	StreamEventTypeFailed StreamEventType = "failed"
)

// String returns the string representation of the StreamEventType.
func (t StreamEventType) String() string { return string(t) }

// Terminal reports whether this event type closes the run's channel.
func (t StreamEventType) Terminal() bool {
	return t == StreamEventTypeCompleted || t == StreamEventTypeFailed
}

// StreamEvent is one message on a run's live event channel. Events are
// ephemeral; they survive only inside the channel's bounded replay window
// and are never persisted.
type StreamEvent struct {
	RunID     uuid.UUID       `json:"run_id"`
	Type      StreamEventType `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewStreamEvent builds a StreamEvent for the given run, marshaling the
// payload to JSON. A nil payload produces an event with no payload field.
func NewStreamEvent(runID uuid.UUID, typ StreamEventType, payload any) (StreamEvent, error) {
	evt := StreamEvent{
		RunID:     runID,
		Type:      typ,
		Timestamp: time.Now(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return StreamEvent{}, fmt.Errorf("marshaling stream event payload: %w", err)
		}
		evt.Payload = raw
	}

	return evt, nil
}
