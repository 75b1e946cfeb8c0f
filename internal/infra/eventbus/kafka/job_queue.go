package kafka

import (
	"context"
	"fmt"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
)

// runJobsPartitionKey is the fixed routing key for job messages. Combined
// with the single-partition jobs topic it guarantees jobs are delivered to
// the worker in submission order.
const runJobsPartitionKey = "run-jobs"

var _ scanning.RunJobQueue = (*RunJobQueue)(nil)

// RunJobQueue implements the durable run job queue on top of the Kafka event
// bus. Jobs survive process restarts because the backing topic retains them
// until the worker's consumer group commits their offsets.
type RunJobQueue struct {
	publisher events.DomainEventPublisher
}

// NewRunJobQueue creates a queue that enqueues run jobs through the provided
// domain event publisher.
func NewRunJobQueue(publisher events.DomainEventPublisher) *RunJobQueue {
	return &RunJobQueue{publisher: publisher}
}

// Enqueue appends a job to the durable queue.
func (q *RunJobQueue) Enqueue(ctx context.Context, job scanning.RunJobQueuedEvent) error {
	err := q.publisher.PublishDomainEvent(ctx, events.DomainEvent{
		Type:      job.EventType(),
		Timestamp: job.OccurredAt(),
		Payload:   job,
	}, events.WithKey(runJobsPartitionKey))
	if err != nil {
		return fmt.Errorf("enqueue run job %s: %w", job.RunID, err)
	}

	return nil
}
