// Package scanning provides domain types and interfaces for managing scan runs.
// It defines the core abstractions needed to submit executions, track their
// lifecycle, and stream output to concurrent observers.
package scanning

import (
	"context"

	"github.com/google/uuid"
)

// RunJobQueue carries pending run jobs from submission to the worker. The
// queue is durable and strictly FIFO; exactly one worker drains it.
type RunJobQueue interface {
	// Enqueue appends a job to the queue. It returns once the job is
	// durably accepted, not once it is processed.
	Enqueue(ctx context.Context, job RunJobQueuedEvent) error
}

// StreamBroker distributes a run's live events to subscribers. Channels are
// created lazily per run and replay a bounded backlog to late joiners.
type StreamBroker interface {
	// Publish appends an event to the run's channel, delivering it to every
	// current subscriber and retaining it in the replay window.
	Publish(ctx context.Context, evt StreamEvent) error

	// Subscribe attaches to a run's channel. The returned channel first
	// yields the buffered backlog oldest-to-newest, then live events. The
	// cancel func detaches the subscriber and must always be called.
	Subscribe(ctx context.Context, runID uuid.UUID) (<-chan StreamEvent, func(), error)
}
