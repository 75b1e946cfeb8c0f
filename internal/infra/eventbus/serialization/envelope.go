package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
)

// universalEnvelope is the outer wire frame wrapped around every serialized
// payload on the bus. Consumers read the event type tag before dispatching
// the payload to its registered codec.
type universalEnvelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
}

// SerializeEventEnvelope serializes a domain payload and wraps it in the
// universal envelope so consumers can identify the event type without
// knowing the payload schema up front.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := SerializePayload(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("serializing payload for %s: %w", eventType, err)
	}

	return json.Marshal(universalEnvelope{EventType: eventType, Payload: payloadBytes})
}

// UnmarshalUniversalEnvelope splits a raw message into its event type and the
// still-serialized payload bytes. The caller passes the payload bytes to
// DeserializePayload once it has decided the event is of interest.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var envelope universalEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("unmarshaling event envelope: %w", err)
	}

	return envelope.EventType, envelope.Payload, nil
}
