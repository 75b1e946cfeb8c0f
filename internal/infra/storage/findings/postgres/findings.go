package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// findingStore implements findings.FindingRepository using PostgreSQL as the
// backing store. Each finding row carries exactly one owner, either a run or
// a workflow session; the schema enforces the exclusivity.
var _ findings.FindingRepository = (*findingStore)(nil)

type findingStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewFindingStore creates a new PostgreSQL-backed finding repository with tracing capabilities.
func NewFindingStore(pool *pgxpool.Pool, tracer trace.Tracer) *findingStore {
	return &findingStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// findingColumns is the column list shared by every query that reconstructs a Finding.
const findingColumns = `id, run_id, session_id, severity, title, description, evidence, remediation, exploitation, verification, created_at`

// CreateFinding persists a newly discovered finding.
func (s *findingStore) CreateFinding(ctx context.Context, finding *findings.Finding) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("finding_id", finding.FindingID().String()),
		attribute.String("severity", finding.Severity().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_finding", dbAttrs, func(ctx context.Context) error {
		const query = `
			INSERT INTO findings (id, run_id, session_id, severity, title, description, evidence, remediation, exploitation, verification, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

		var runID, sessionID pgtype.UUID
		if rid := finding.RunID(); rid != nil {
			runID = pgtype.UUID{Bytes: *rid, Valid: true}
		}
		if sid := finding.SessionID(); sid != nil {
			sessionID = pgtype.UUID{Bytes: *sid, Valid: true}
		}

		_, err := s.db.Exec(ctx, query,
			finding.FindingID(),
			runID,
			sessionID,
			finding.Severity().String(),
			finding.Title(),
			finding.Description(),
			finding.Evidence(),
			finding.Remediation(),
			finding.Exploitation(),
			finding.Verification(),
			finding.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("CreateFinding insert error: %w", err)
		}
		return nil
	})
}

// ListFindingsByRun retrieves all findings owned by a run, oldest first.
func (s *findingStore) ListFindingsByRun(ctx context.Context, runID uuid.UUID) ([]*findings.Finding, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", runID.String()),
	)

	return s.listFindings(ctx, "postgres.list_findings_by_run", dbAttrs,
		`SELECT `+findingColumns+` FROM findings WHERE run_id = $1 ORDER BY created_at ASC, id ASC`, runID)
}

// ListFindingsBySession retrieves all findings owned by a session, oldest first.
func (s *findingStore) ListFindingsBySession(ctx context.Context, sessionID uuid.UUID) ([]*findings.Finding, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("session_id", sessionID.String()),
	)

	return s.listFindings(ctx, "postgres.list_findings_by_session", dbAttrs,
		`SELECT `+findingColumns+` FROM findings WHERE session_id = $1 ORDER BY created_at ASC, id ASC`, sessionID)
}

// DeleteFinding removes a single finding.
func (s *findingStore) DeleteFinding(ctx context.Context, findingID uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("finding_id", findingID.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_finding", dbAttrs, func(ctx context.Context) error {
		res, err := s.db.Exec(ctx, `DELETE FROM findings WHERE id = $1`, findingID)
		if err != nil {
			return fmt.Errorf("DeleteFinding query error: %w", err)
		}
		if res.RowsAffected() == 0 {
			return findings.ErrFindingNotFound
		}
		return nil
	})
}

func (s *findingStore) listFindings(
	ctx context.Context,
	spanName string,
	dbAttrs []attribute.KeyValue,
	query string,
	ownerID uuid.UUID,
) ([]*findings.Finding, error) {
	var results []*findings.Finding
	err := storage.ExecuteAndTrace(ctx, s.tracer, spanName, dbAttrs, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, ownerID)
		if err != nil {
			return fmt.Errorf("list findings query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			finding, err := scanFinding(rows)
			if err != nil {
				return fmt.Errorf("list findings scan error: %w", err)
			}
			results = append(results, finding)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// scanFinding reconstructs a Finding from one row selected with findingColumns.
func scanFinding(row pgx.Row) (*findings.Finding, error) {
	var (
		id                           uuid.UUID
		runID, sessionID             pgtype.UUID
		severity, title, description string
		evidence, remediation        string
		exploitation, verification   string
		createdAt                    time.Time
	)

	err := row.Scan(
		&id, &runID, &sessionID, &severity, &title, &description,
		&evidence, &remediation, &exploitation, &verification, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	var runPtr, sessionPtr *uuid.UUID
	if runID.Valid {
		rid := uuid.UUID(runID.Bytes)
		runPtr = &rid
	}
	if sessionID.Valid {
		sid := uuid.UUID(sessionID.Bytes)
		sessionPtr = &sid
	}

	return findings.ReconstructFinding(
		id,
		runPtr,
		sessionPtr,
		findings.Severity(severity),
		title,
		description,
		evidence,
		remediation,
		exploitation,
		verification,
		createdAt,
	), nil
}
