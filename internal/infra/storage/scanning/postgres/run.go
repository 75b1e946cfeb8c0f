package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// runStore implements scanning.RunRepository using PostgreSQL as the backing
// store. It provides persistent storage for runs across their full lifecycle,
// including the transactional cascade that removes a run together with its
// artifacts and findings.
var _ scanning.RunRepository = (*runStore)(nil)

type runStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRunStore creates a new PostgreSQL-backed run repository with tracing capabilities.
func NewRunStore(pool *pgxpool.Pool, tracer trace.Tracer) *runStore {
	return &runStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// runColumns is the column list shared by every query that reconstructs a Run.
const runColumns = `id, user_id, tool_id, scope_id, target, params, timeout_ms, status, exit_code, error_message, created_at, started_at, completed_at`

// CreateRun persists a new run record with its initial PENDING state.
func (r *runStore) CreateRun(ctx context.Context, run *scanning.Run) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", run.RunID().String()),
		attribute.String("status", string(run.Status())),
		attribute.String("target", run.Target()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_run", dbAttrs, func(ctx context.Context) error {
		const query = `
			INSERT INTO runs (id, user_id, tool_id, scope_id, target, params, timeout_ms, status, error_message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		var scopeID pgtype.UUID
		if sid := run.ScopeID(); sid != nil {
			scopeID = pgtype.UUID{Bytes: *sid, Valid: true}
		}

		_, err := r.db.Exec(ctx, query,
			run.RunID(),
			run.UserID(),
			run.ToolID(),
			scopeID,
			run.Target(),
			run.Params(),
			run.Timeout().Milliseconds(),
			string(run.Status()),
			run.ErrorMessage(),
			run.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("CreateRun insert error: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run's current state. It reconstructs the domain model
// from the stored data and returns ErrRunNotFound for unknown IDs.
func (r *runStore) GetRun(ctx context.Context, runID uuid.UUID) (*scanning.Run, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", runID.String()),
	)

	var run *scanning.Run
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_run", dbAttrs, func(ctx context.Context) error {
		const query = `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

		loaded, err := scanRun(r.db.QueryRow(ctx, query, runID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return scanning.ErrRunNotFound
			}
			return fmt.Errorf("GetRun query error: %w", err)
		}

		run = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return run, nil
}

// UpdateRun persists changes to an existing run's state.
func (r *runStore) UpdateRun(ctx context.Context, run *scanning.Run) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", run.RunID().String()),
		attribute.String("status", string(run.Status())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_run", dbAttrs, func(ctx context.Context) error {
		const query = `
			UPDATE runs
			SET status = $2, exit_code = $3, error_message = $4, started_at = $5, completed_at = $6
			WHERE id = $1`

		var exitCode pgtype.Int4
		if ec := run.ExitCode(); ec != nil {
			exitCode = pgtype.Int4{Int32: int32(*ec), Valid: true}
		}

		res, err := r.db.Exec(ctx, query,
			run.RunID(),
			string(run.Status()),
			exitCode,
			run.ErrorMessage(),
			pgtype.Timestamptz{Time: run.StartedAt(), Valid: !run.StartedAt().IsZero()},
			pgtype.Timestamptz{Time: run.CompletedAt(), Valid: !run.CompletedAt().IsZero()},
		)
		if err != nil {
			return fmt.Errorf("UpdateRun query error: %w", err)
		}

		if res.RowsAffected() == 0 {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("run_not_found", true))
			return scanning.ErrRunNotFound
		}
		return nil
	})
}

// DeleteRun removes a run and every dependent artifact and finding in one
// transaction. A run that is still referenced by a workflow session cannot be
// deleted this way; its session owns the cascade.
func (r *runStore) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", runID.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.delete_run", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM findings WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("delete run findings error: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM run_artifacts WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("delete run artifacts error: %w", err)
		}

		res, err := tx.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID)
		if err != nil {
			return fmt.Errorf("delete run error: %w", err)
		}
		if res.RowsAffected() == 0 {
			return scanning.ErrRunNotFound
		}

		return tx.Commit(ctx)
	})
}

// ListRunsByUser retrieves a user's runs, newest first.
func (r *runStore) ListRunsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*scanning.Run, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("user_id", userID.String()),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var runs []*scanning.Run
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_runs_by_user", dbAttrs, func(ctx context.Context) error {
		const query = `
			SELECT ` + runColumns + `
			FROM runs
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3`

		rows, err := r.db.Query(ctx, query, userID, limit, offset)
		if err != nil {
			return fmt.Errorf("ListRunsByUser query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return fmt.Errorf("ListRunsByUser scan error: %w", err)
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// scanRun reconstructs a Run from one row selected with runColumns.
func scanRun(row pgx.Row) (*scanning.Run, error) {
	var (
		id, userID, toolID     uuid.UUID
		scopeID                pgtype.UUID
		target, errorMsg       string
		params                 json.RawMessage
		timeoutMS              int64
		status                 string
		exitCode               pgtype.Int4
		createdAt              time.Time
		startedAt, completedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &userID, &toolID, &scopeID, &target, &params, &timeoutMS,
		&status, &exitCode, &errorMsg, &createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	var scopePtr *uuid.UUID
	if scopeID.Valid {
		sid := uuid.UUID(scopeID.Bytes)
		scopePtr = &sid
	}

	var exitPtr *int
	if exitCode.Valid {
		ec := int(exitCode.Int32)
		exitPtr = &ec
	}

	return scanning.ReconstructRun(
		id,
		userID,
		toolID,
		scopePtr,
		target,
		params,
		time.Duration(timeoutMS)*time.Millisecond,
		scanning.RunStatus(status),
		exitPtr,
		errorMsg,
		createdAt,
		startedAt.Time,
		completedAt.Time,
	), nil
}
