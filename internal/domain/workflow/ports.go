// Package workflow provides domain types and interfaces for composite
// six-phase engagements: sessions, their steps, the phase machine, and
// global single-flight admission.
package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoQueuedSessions is returned by NextQueued when the CREATED backlog is empty.
var ErrNoQueuedSessions = errors.New("no queued sessions")

// SessionRepository defines the persistence operations for workflow sessions
// and their steps. It also carries the single-flight admission primitives,
// which need storage-level atomicity.
type SessionRepository interface {
	// CreateSession persists a new session together with its six steps.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session with its steps in phase order.
	// It returns ErrSessionNotFound if no session exists with the given ID.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)

	// UpdateSession persists changes to a session's own fields
	// (status, phase pointer, risk score, timestamps, error text).
	UpdateSession(ctx context.Context, session *Session) error

	// UpdateStep persists changes to a single step's state.
	UpdateStep(ctx context.Context, step *Step) error

	// ClaimRunning atomically moves a session from CREATED to RUNNING iff no
	// other session is RUNNING. It reports false, without error, when
	// another session holds the slot.
	ClaimRunning(ctx context.Context, sessionID uuid.UUID) (bool, error)

	// QueuePosition returns the session's 1-based rank among CREATED
	// sessions ordered by creation time.
	QueuePosition(ctx context.Context, sessionID uuid.UUID) (int, error)

	// NextQueued returns the oldest CREATED session, or ErrNoQueuedSessions
	// when the backlog is empty.
	NextQueued(ctx context.Context) (*Session, error)

	// DeleteSession removes the session's findings, steps, the session row,
	// and the bound run with its artifacts and findings, all in one
	// transaction.
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error

	// ListSessionsByUser retrieves a user's sessions, newest first.
	ListSessionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Session, error)
}
