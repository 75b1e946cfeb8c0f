package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

// publishStream pushes an event onto the bound run's live channel. Stream
// delivery is best effort; failures are logged and swallowed.
func publishStream(
	ctx context.Context,
	broker scanning.StreamBroker,
	logger *logger.Logger,
	runID uuid.UUID,
	typ scanning.StreamEventType,
	payload any,
) {
	evt, err := scanning.NewStreamEvent(runID, typ, payload)
	if err != nil {
		logger.Error(ctx, "Failed to build stream event", "event_type", typ, "error", err)
		return
	}
	if err := broker.Publish(ctx, evt); err != nil {
		logger.Error(ctx, "Failed to publish stream event", "event_type", typ, "error", err)
	}
}

// auditEvent is the common shape of the lifecycle events that land on the
// audit topic.
type auditEvent interface {
	EventType() events.EventType
	OccurredAt() time.Time
}

// publishAudit emits a lifecycle event to the audit topic, keyed so per-key
// ordering survives partitioning. Audit delivery never blocks a state
// transition; failures are logged and swallowed.
func publishAudit(
	ctx context.Context,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	key string,
	evt auditEvent,
) {
	if err := publisher.PublishDomainEvent(ctx, events.DomainEvent{
		Type:      evt.EventType(),
		Timestamp: evt.OccurredAt(),
		Payload:   evt,
	}, events.WithKey(key)); err != nil {
		logger.Error(ctx, "Failed to publish audit event", "event_type", evt.EventType(), "error", err)
	}
}
