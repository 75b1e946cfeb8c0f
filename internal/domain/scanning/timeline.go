package scanning

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now() }

// Timeline tracks temporal aspects of a run's lifecycle.
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

// ReconstructTimeline creates a Timeline instance from persisted timestamps.
// This should only be used by repositories when reconstructing from storage.
func ReconstructTimeline(createdAt, startedAt, completedAt time.Time, timeProvider TimeProvider) *Timeline {
	if timeProvider == nil {
		timeProvider = new(realTimeProvider)
	}
	return &Timeline{
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		timeProvider: timeProvider,
	}
}

// CreatedAt returns the time the run was accepted.
func (t *Timeline) CreatedAt() time.Time { return t.createdAt }

// StartedAt returns the time the worker began executing the run.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the run reached a terminal status.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// MarkStarted records the start of execution.
func (t *Timeline) MarkStarted() { t.startedAt = t.timeProvider.Now() }

// MarkCompleted records the arrival at a terminal status.
func (t *Timeline) MarkCompleted() { t.completedAt = t.timeProvider.Now() }

// HasStarted checks if the timeline has been marked as started.
func (t *Timeline) HasStarted() bool { return !t.startedAt.IsZero() }

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
