package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
)

// Wire representations for run lifecycle events. These are deliberately kept
// separate from the domain structs so the domain can evolve without silently
// changing the on-wire schema.

type runJobQueuedWire struct {
	RunID       uuid.UUID `json:"run_id"`
	Target      string    `json:"target"`
	RequestedBy uuid.UUID `json:"requested_by"`
}

type runStartedWire struct {
	RunID  uuid.UUID `json:"run_id"`
	Target string    `json:"target"`
}

type runCompletedWire struct {
	RunID    uuid.UUID `json:"run_id"`
	ExitCode int       `json:"exit_code"`
}

type runFailedWire struct {
	RunID  uuid.UUID `json:"run_id"`
	Reason string    `json:"reason"`
}

type runTimedOutWire struct {
	RunID  uuid.UUID `json:"run_id"`
	Reason string    `json:"reason"`
}

type runCancelledWire struct {
	RunID       uuid.UUID `json:"run_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
}

// serializeRunJobQueued converts a RunJobQueuedEvent to its wire form.
func serializeRunJobQueued(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.RunJobQueuedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a RunJobQueuedEvent: %T", payload)
	}

	return json.Marshal(runJobQueuedWire{
		RunID:       evt.RunID,
		Target:      evt.Target,
		RequestedBy: evt.RequestedBy,
	})
}

// deserializeRunJobQueued converts wire bytes back into a RunJobQueuedEvent.
func deserializeRunJobQueued(data []byte) (any, error) {
	var wire runJobQueuedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal RunJobQueuedEvent: %w", err)
	}

	return scanning.NewRunJobQueuedEvent(wire.RunID, wire.Target, wire.RequestedBy), nil
}

func serializeRunStarted(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.RunStartedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a RunStartedEvent: %T", payload)
	}

	return json.Marshal(runStartedWire{RunID: evt.RunID, Target: evt.Target})
}

func deserializeRunStarted(data []byte) (any, error) {
	var wire runStartedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal RunStartedEvent: %w", err)
	}

	return scanning.NewRunStartedEvent(wire.RunID, wire.Target), nil
}

func serializeRunCompleted(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.RunCompletedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a RunCompletedEvent: %T", payload)
	}

	return json.Marshal(runCompletedWire{RunID: evt.RunID, ExitCode: evt.ExitCode})
}

func deserializeRunCompleted(data []byte) (any, error) {
	var wire runCompletedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal RunCompletedEvent: %w", err)
	}

	return scanning.NewRunCompletedEvent(wire.RunID, wire.ExitCode), nil
}

func serializeRunFailed(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.RunFailedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a RunFailedEvent: %T", payload)
	}

	return json.Marshal(runFailedWire{RunID: evt.RunID, Reason: evt.Reason})
}

func deserializeRunFailed(data []byte) (any, error) {
	var wire runFailedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal RunFailedEvent: %w", err)
	}

	return scanning.NewRunFailedEvent(wire.RunID, wire.Reason), nil
}

func serializeRunTimedOut(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.RunTimedOutEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a RunTimedOutEvent: %T", payload)
	}

	return json.Marshal(runTimedOutWire{RunID: evt.RunID, Reason: evt.Reason})
}

func deserializeRunTimedOut(data []byte) (any, error) {
	var wire runTimedOutWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal RunTimedOutEvent: %w", err)
	}

	return scanning.NewRunTimedOutEvent(wire.RunID, wire.Reason), nil
}

func serializeRunCancelled(payload any) ([]byte, error) {
	evt, ok := payload.(scanning.RunCancelledEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a RunCancelledEvent: %T", payload)
	}

	return json.Marshal(runCancelledWire{RunID: evt.RunID, RequestedBy: evt.RequestedBy})
}

func deserializeRunCancelled(data []byte) (any, error) {
	var wire runCancelledWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal RunCancelledEvent: %w", err)
	}

	return scanning.NewRunCancelledEvent(wire.RunID, wire.RequestedBy), nil
}
