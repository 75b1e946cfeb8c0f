package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// artifactStore implements scanning.ArtifactRepository using PostgreSQL as
// the backing store. Artifacts are keyed by (run, name); repeated writes of
// the same name replace the content in place, which is what lets the worker
// flush accumulating output under a stable name throughout an execution.
var _ scanning.ArtifactRepository = (*artifactStore)(nil)

type artifactStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewArtifactStore creates a new PostgreSQL-backed artifact repository with tracing capabilities.
func NewArtifactStore(pool *pgxpool.Pool, tracer trace.Tracer) *artifactStore {
	return &artifactStore{db: pool, tracer: tracer}
}

// UpsertArtifact writes an artifact, replacing the content and size of any
// existing artifact with the same (run, name) key.
func (s *artifactStore) UpsertArtifact(ctx context.Context, artifact *scanning.Artifact) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", artifact.RunID().String()),
		attribute.String("name", artifact.Name()),
		attribute.String("kind", artifact.Kind().String()),
		attribute.Int64("size_bytes", artifact.Size()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.upsert_artifact", dbAttrs, func(ctx context.Context) error {
		const query = `
			INSERT INTO run_artifacts (id, run_id, name, kind, content, size_bytes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id, name) DO UPDATE SET
				content = EXCLUDED.content,
				size_bytes = EXCLUDED.size_bytes,
				updated_at = NOW()`

		_, err := s.db.Exec(ctx, query,
			artifact.ArtifactID(),
			artifact.RunID(),
			artifact.Name(),
			artifact.Kind().String(),
			artifact.Content(),
			artifact.Size(),
			artifact.CreatedAt(),
			artifact.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("UpsertArtifact query error: %w", err)
		}
		return nil
	})
}

// ListArtifactsByRun retrieves all artifacts attached to a run, oldest first.
func (s *artifactStore) ListArtifactsByRun(ctx context.Context, runID uuid.UUID) ([]*scanning.Artifact, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", runID.String()),
	)

	var artifacts []*scanning.Artifact
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_artifacts_by_run", dbAttrs, func(ctx context.Context) error {
		const query = `
			SELECT id, run_id, name, kind, content, size_bytes, created_at, updated_at
			FROM run_artifacts
			WHERE run_id = $1
			ORDER BY created_at ASC, name ASC`

		rows, err := s.db.Query(ctx, query, runID)
		if err != nil {
			return fmt.Errorf("ListArtifactsByRun query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, owner            uuid.UUID
				name, kind           string
				content              []byte
				size                 int64
				createdAt, updatedAt time.Time
			)
			if err := rows.Scan(&id, &owner, &name, &kind, &content, &size, &createdAt, &updatedAt); err != nil {
				return fmt.Errorf("ListArtifactsByRun scan error: %w", err)
			}

			artifacts = append(artifacts, scanning.ReconstructArtifact(
				id, owner, name, scanning.ArtifactKind(kind), content, size, createdAt, updatedAt,
			))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return artifacts, nil
}
