package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
)

// Wire representations for workflow session events.

type sessionQueuedWire struct {
	SessionID uuid.UUID `json:"session_id"`
	Position  int       `json:"position"`
}

type sessionStartedWire struct {
	SessionID uuid.UUID `json:"session_id"`
	Target    string    `json:"target"`
}

type sessionCompletedWire struct {
	SessionID uuid.UUID `json:"session_id"`
	RiskScore int       `json:"risk_score"`
}

type sessionFailedWire struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason"`
}

type sessionCancelledWire struct {
	SessionID   uuid.UUID `json:"session_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
}

type phaseStartedWire struct {
	SessionID uuid.UUID `json:"session_id"`
	Phase     int       `json:"phase"`
}

type phaseCompletedWire struct {
	SessionID  uuid.UUID `json:"session_id"`
	Phase      int       `json:"phase"`
	StepStatus string    `json:"step_status"`
}

func serializeSessionQueued(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.SessionQueuedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a SessionQueuedEvent: %T", payload)
	}

	return json.Marshal(sessionQueuedWire{SessionID: evt.SessionID, Position: evt.Position})
}

func deserializeSessionQueued(data []byte) (any, error) {
	var wire sessionQueuedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal SessionQueuedEvent: %w", err)
	}

	return workflow.NewSessionQueuedEvent(wire.SessionID, wire.Position), nil
}

func serializeSessionStarted(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.SessionStartedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a SessionStartedEvent: %T", payload)
	}

	return json.Marshal(sessionStartedWire{SessionID: evt.SessionID, Target: evt.Target})
}

func deserializeSessionStarted(data []byte) (any, error) {
	var wire sessionStartedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal SessionStartedEvent: %w", err)
	}

	return workflow.NewSessionStartedEvent(wire.SessionID, wire.Target), nil
}

func serializeSessionCompleted(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.SessionCompletedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a SessionCompletedEvent: %T", payload)
	}

	return json.Marshal(sessionCompletedWire{SessionID: evt.SessionID, RiskScore: evt.RiskScore})
}

func deserializeSessionCompleted(data []byte) (any, error) {
	var wire sessionCompletedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal SessionCompletedEvent: %w", err)
	}

	return workflow.NewSessionCompletedEvent(wire.SessionID, wire.RiskScore), nil
}

func serializeSessionFailed(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.SessionFailedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a SessionFailedEvent: %T", payload)
	}

	return json.Marshal(sessionFailedWire{SessionID: evt.SessionID, Reason: evt.Reason})
}

func deserializeSessionFailed(data []byte) (any, error) {
	var wire sessionFailedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal SessionFailedEvent: %w", err)
	}

	return workflow.NewSessionFailedEvent(wire.SessionID, wire.Reason), nil
}

func serializeSessionCancelled(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.SessionCancelledEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a SessionCancelledEvent: %T", payload)
	}

	return json.Marshal(sessionCancelledWire{SessionID: evt.SessionID, RequestedBy: evt.RequestedBy})
}

func deserializeSessionCancelled(data []byte) (any, error) {
	var wire sessionCancelledWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal SessionCancelledEvent: %w", err)
	}

	return workflow.NewSessionCancelledEvent(wire.SessionID, wire.RequestedBy), nil
}

func serializePhaseStarted(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.PhaseStartedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a PhaseStartedEvent: %T", payload)
	}

	return json.Marshal(phaseStartedWire{SessionID: evt.SessionID, Phase: int(evt.Phase)})
}

func deserializePhaseStarted(data []byte) (any, error) {
	var wire phaseStartedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal PhaseStartedEvent: %w", err)
	}

	phase := workflow.Phase(wire.Phase)
	if !phase.Valid() {
		return nil, fmt.Errorf("invalid phase in PhaseStartedEvent: %d", wire.Phase)
	}

	return workflow.NewPhaseStartedEvent(wire.SessionID, phase), nil
}

func serializePhaseCompleted(payload any) ([]byte, error) {
	evt, ok := payload.(workflow.PhaseCompletedEvent)
	if !ok {
		return nil, fmt.Errorf("payload is not a PhaseCompletedEvent: %T", payload)
	}

	return json.Marshal(phaseCompletedWire{
		SessionID:  evt.SessionID,
		Phase:      int(evt.Phase),
		StepStatus: string(evt.StepStatus),
	})
}

func deserializePhaseCompleted(data []byte) (any, error) {
	var wire phaseCompletedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal PhaseCompletedEvent: %w", err)
	}

	phase := workflow.Phase(wire.Phase)
	if !phase.Valid() {
		return nil, fmt.Errorf("invalid phase in PhaseCompletedEvent: %d", wire.Phase)
	}

	status := workflow.ParseStepStatus(wire.StepStatus)
	if status == "" {
		return nil, fmt.Errorf("invalid step status in PhaseCompletedEvent: %q", wire.StepStatus)
	}

	return workflow.NewPhaseCompletedEvent(wire.SessionID, phase, status), nil
}
