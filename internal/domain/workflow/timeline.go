package workflow

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now() }

// Timeline is a value object tracking temporal aspects of sessions and steps.
type Timeline struct {
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance anchored at creation time.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	return &Timeline{
		createdAt:    timeProvider.Now(),
		timeProvider: timeProvider,
	}
}

// ReconstructTimeline creates a Timeline instance from persisted timestamp data.
func ReconstructTimeline(createdAt, startedAt, completedAt time.Time) *Timeline {
	return &Timeline{
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		timeProvider: &realTimeProvider{}, // Use default provider for reconstructed timelines
	}
}

// Getters
func (t *Timeline) CreatedAt() time.Time   { return t.createdAt }
func (t *Timeline) StartedAt() time.Time   { return t.startedAt }
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// MarkStarted records the start of execution.
func (t *Timeline) MarkStarted() { t.startedAt = t.timeProvider.Now() }

// MarkCompleted records the arrival at a terminal status.
func (t *Timeline) MarkCompleted() { t.completedAt = t.timeProvider.Now() }

// HasStarted returns whether the timeline has been marked as started.
func (t *Timeline) HasStarted() bool { return !t.startedAt.IsZero() }

// IsCompleted returns whether the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
