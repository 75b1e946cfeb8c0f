package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// uniqueViolation is the PostgreSQL error code raised when the partial unique
// index on RUNNING sessions rejects a second claim racing for the slot.
const uniqueViolation = "23505"

// sessionStore implements workflow.SessionRepository using PostgreSQL as the
// backing store. Beyond plain persistence it carries the admission control
// primitives: the conditional claim that grants the single global execution
// slot and the queue ordering over CREATED sessions.
var _ workflow.SessionRepository = (*sessionStore)(nil)

type sessionStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewSessionStore creates a new PostgreSQL-backed session repository with tracing capabilities.
func NewSessionStore(pool *pgxpool.Pool, tracer trace.Tracer) *sessionStore {
	return &sessionStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// sessionColumns is the column list shared by every query that reconstructs a Session.
const sessionColumns = `id, user_id, run_id, name, target, objective, max_steps, status, current_phase, risk_score, error_message, created_at, started_at, completed_at`

// CreateSession persists a new session together with its six steps in one
// transaction.
func (s *sessionStore) CreateSession(ctx context.Context, session *workflow.Session) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", session.SessionID().String()),
		attribute.String("status", string(session.Status())),
		attribute.Int("num_steps", len(session.Steps())),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_session", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		const sessionQuery = `
			INSERT INTO workflow_sessions (id, user_id, run_id, name, target, objective, max_steps, status, current_phase, risk_score, error_message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

		_, err = tx.Exec(ctx, sessionQuery,
			session.SessionID(),
			session.UserID(),
			session.RunID(),
			session.Name(),
			session.Target(),
			session.Objective().String(),
			session.MaxSteps(),
			string(session.Status()),
			int(session.CurrentPhase()),
			session.RiskScore(),
			session.ErrorMessage(),
			session.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("CreateSession insert error: %w", err)
		}

		const stepQuery = `
			INSERT INTO workflow_steps (id, session_id, phase, name, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`

		for _, step := range session.Steps() {
			_, err = tx.Exec(ctx, stepQuery,
				step.StepID(),
				step.SessionID(),
				step.Phase().Ordinal(),
				step.Phase().Name(),
				string(step.Status()),
				step.CreatedAt(),
			)
			if err != nil {
				return fmt.Errorf("CreateSession step insert error: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
}

// GetSession retrieves a session with its steps in phase order.
func (s *sessionStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*workflow.Session, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	var session *workflow.Session
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_session", dbAttrs, func(ctx context.Context) error {
		const query = `SELECT ` + sessionColumns + ` FROM workflow_sessions WHERE id = $1`

		row, err := scanSessionRow(s.db.QueryRow(ctx, query, sessionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return workflow.ErrSessionNotFound
			}
			return fmt.Errorf("GetSession query error: %w", err)
		}

		steps, err := s.loadSteps(ctx, sessionID)
		if err != nil {
			return err
		}

		session = row.reconstruct(steps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// UpdateSession persists changes to a session's own fields. Step state is
// persisted separately through UpdateStep.
func (s *sessionStore) UpdateSession(ctx context.Context, session *workflow.Session) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", session.SessionID().String()),
		attribute.String("status", string(session.Status())),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_session", dbAttrs, func(ctx context.Context) error {
		const query = `
			UPDATE workflow_sessions
			SET status = $2, current_phase = $3, risk_score = $4, error_message = $5, started_at = $6, completed_at = $7
			WHERE id = $1`

		res, err := s.db.Exec(ctx, query,
			session.SessionID(),
			string(session.Status()),
			int(session.CurrentPhase()),
			session.RiskScore(),
			session.ErrorMessage(),
			pgtype.Timestamptz{Time: session.StartedAt(), Valid: !session.StartedAt().IsZero()},
			pgtype.Timestamptz{Time: session.CompletedAt(), Valid: !session.CompletedAt().IsZero()},
		)
		if err != nil {
			return fmt.Errorf("UpdateSession query error: %w", err)
		}

		if res.RowsAffected() == 0 {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("session_not_found", true))
			return workflow.ErrSessionNotFound
		}
		return nil
	})
}

// UpdateStep persists changes to a single step's state.
func (s *sessionStore) UpdateStep(ctx context.Context, step *workflow.Step) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("step_id", step.StepID().String()),
		attribute.Int("phase", step.Phase().Ordinal()),
		attribute.String("status", string(step.Status())),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_step", dbAttrs, func(ctx context.Context) error {
		const query = `
			UPDATE workflow_steps
			SET status = $2, error_message = $3, impact = $4, remediation_hint = $5, started_at = $6, completed_at = $7
			WHERE id = $1`

		res, err := s.db.Exec(ctx, query,
			step.StepID(),
			string(step.Status()),
			step.ErrorMessage(),
			step.Impact(),
			step.RemediationHint(),
			pgtype.Timestamptz{Time: step.StartedAt(), Valid: !step.StartedAt().IsZero()},
			pgtype.Timestamptz{Time: step.CompletedAt(), Valid: !step.CompletedAt().IsZero()},
		)
		if err != nil {
			return fmt.Errorf("UpdateStep query error: %w", err)
		}

		if res.RowsAffected() == 0 {
			return fmt.Errorf("step not found: %s", step.StepID())
		}
		return nil
	})
}

// ClaimRunning atomically moves a session from CREATED to RUNNING iff no
// other session is RUNNING. The conditional update and the partial unique
// index on RUNNING rows together guarantee at most one winner under
// concurrent claims; a losing claim reports false without error.
func (s *sessionStore) ClaimRunning(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	var claimed bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.claim_running", dbAttrs, func(ctx context.Context) error {
		const query = `
			UPDATE workflow_sessions
			SET status = 'RUNNING', current_phase = 1, started_at = NOW()
			WHERE id = $1
			  AND status = 'CREATED'
			  AND NOT EXISTS (SELECT 1 FROM workflow_sessions WHERE status = 'RUNNING')`

		res, err := s.db.Exec(ctx, query, sessionID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil
			}
			return fmt.Errorf("ClaimRunning query error: %w", err)
		}

		claimed = res.RowsAffected() == 1
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("claimed", claimed))
		return nil
	})
	if err != nil {
		return false, err
	}

	return claimed, nil
}

// QueuePosition returns the session's 1-based rank among CREATED sessions
// ordered by creation time. A session that is not queued reports position 0.
func (s *sessionStore) QueuePosition(ctx context.Context, sessionID uuid.UUID) (int, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	var position int
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.queue_position", dbAttrs, func(ctx context.Context) error {
		const query = `
			SELECT pos FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY created_at ASC, id ASC) AS pos
				FROM workflow_sessions
				WHERE status = 'CREATED'
			) queued
			WHERE id = $1`

		if err := s.db.QueryRow(ctx, query, sessionID).Scan(&position); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				position = 0
				return nil
			}
			return fmt.Errorf("QueuePosition query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return position, nil
}

// NextQueued returns the oldest CREATED session, or ErrNoQueuedSessions when
// the backlog is empty.
func (s *sessionStore) NextQueued(ctx context.Context) (*workflow.Session, error) {
	var session *workflow.Session
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.next_queued", defaultDBAttributes, func(ctx context.Context) error {
		const query = `
			SELECT ` + sessionColumns + `
			FROM workflow_sessions
			WHERE status = 'CREATED'
			ORDER BY created_at ASC, id ASC
			LIMIT 1`

		row, err := scanSessionRow(s.db.QueryRow(ctx, query))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return workflow.ErrNoQueuedSessions
			}
			return fmt.Errorf("NextQueued query error: %w", err)
		}

		steps, err := s.loadSteps(ctx, row.id)
		if err != nil {
			return err
		}

		session = row.reconstruct(steps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// DeleteSession removes the session's findings, steps, the session row, and
// the bound run with its artifacts and findings, all in one transaction.
func (s *sessionStore) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_session", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM findings WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("delete session findings error: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM workflow_steps WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("delete session steps error: %w", err)
		}

		var runID uuid.UUID
		err = tx.QueryRow(ctx, `DELETE FROM workflow_sessions WHERE id = $1 RETURNING run_id`, sessionID).Scan(&runID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return workflow.ErrSessionNotFound
			}
			return fmt.Errorf("delete session error: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM findings WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("delete bound run findings error: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM run_artifacts WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("delete bound run artifacts error: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID); err != nil {
			return fmt.Errorf("delete bound run error: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// ListSessionsByUser retrieves a user's sessions, newest first, each with its
// steps in phase order.
func (s *sessionStore) ListSessionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*workflow.Session, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("user_id", userID.String()),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var sessions []*workflow.Session
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_sessions_by_user", dbAttrs, func(ctx context.Context) error {
		const query = `
			SELECT ` + sessionColumns + `
			FROM workflow_sessions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3`

		rows, err := s.db.Query(ctx, query, userID, limit, offset)
		if err != nil {
			return fmt.Errorf("ListSessionsByUser query error: %w", err)
		}
		defer rows.Close()

		var sessionRows []sessionRow
		for rows.Next() {
			row, err := scanSessionRow(rows)
			if err != nil {
				return fmt.Errorf("ListSessionsByUser scan error: %w", err)
			}
			sessionRows = append(sessionRows, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, row := range sessionRows {
			steps, err := s.loadSteps(ctx, row.id)
			if err != nil {
				return err
			}
			sessions = append(sessions, row.reconstruct(steps))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// loadSteps retrieves a session's steps in phase order.
func (s *sessionStore) loadSteps(ctx context.Context, sessionID uuid.UUID) ([]*workflow.Step, error) {
	const query = `
		SELECT id, session_id, phase, status, error_message, impact, remediation_hint, created_at, started_at, completed_at
		FROM workflow_steps
		WHERE session_id = $1
		ORDER BY phase ASC`

	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load steps query error: %w", err)
	}
	defer rows.Close()

	var steps []*workflow.Step
	for rows.Next() {
		var (
			id, owner              uuid.UUID
			phase                  int
			status, errorMsg       string
			impact, hint           string
			createdAt              time.Time
			startedAt, completedAt pgtype.Timestamptz
		)
		err := rows.Scan(&id, &owner, &phase, &status, &errorMsg, &impact, &hint, &createdAt, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("load steps scan error: %w", err)
		}

		steps = append(steps, workflow.ReconstructStep(
			id, owner, workflow.Phase(phase), workflow.StepStatus(status),
			errorMsg, impact, hint, createdAt, startedAt.Time, completedAt.Time,
		))
	}
	return steps, rows.Err()
}

// sessionRow holds one scanned workflow_sessions row before the steps needed
// for full reconstruction are loaded.
type sessionRow struct {
	id, userID, runID      uuid.UUID
	name, target           string
	objective              string
	maxSteps               int
	status                 string
	currentPhase           int
	riskScore              int
	errorMsg               string
	createdAt              time.Time
	startedAt, completedAt pgtype.Timestamptz
}

// scanSessionRow scans one row selected with sessionColumns.
func scanSessionRow(row pgx.Row) (sessionRow, error) {
	var r sessionRow
	err := row.Scan(
		&r.id, &r.userID, &r.runID, &r.name, &r.target, &r.objective, &r.maxSteps,
		&r.status, &r.currentPhase, &r.riskScore, &r.errorMsg,
		&r.createdAt, &r.startedAt, &r.completedAt,
	)
	return r, err
}

// reconstruct builds the domain Session from the scanned row and its steps.
func (r sessionRow) reconstruct(steps []*workflow.Step) *workflow.Session {
	return workflow.ReconstructSession(
		r.id,
		r.userID,
		r.runID,
		r.name,
		r.target,
		workflow.Objective(r.objective),
		r.maxSteps,
		workflow.SessionStatus(r.status),
		workflow.Phase(r.currentPhase),
		r.riskScore,
		r.errorMsg,
		r.createdAt,
		r.startedAt.Time,
		r.completedAt.Time,
		steps,
	)
}
