package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scope"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// scopeStore implements catalog.ScopeRepository using PostgreSQL as the
// backing store. Scope rows are managed externally; this store only reads
// them so the authorizer can evaluate engagement boundaries.
var _ catalog.ScopeRepository = (*scopeStore)(nil)

type scopeStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewScopeStore creates a new PostgreSQL-backed scope repository with tracing capabilities.
func NewScopeStore(pool *pgxpool.Pool, tracer trace.Tracer) *scopeStore {
	return &scopeStore{db: pool, tracer: tracer}
}

// GetScope retrieves a scope by ID.
func (s *scopeStore) GetScope(ctx context.Context, scopeID uuid.UUID) (*scope.Scope, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("scope_id", scopeID.String()),
	)

	var boundary *scope.Scope
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_scope", dbAttrs, func(ctx context.Context) error {
		const query = `SELECT id, name, cidrs, host_patterns, active FROM scopes WHERE id = $1`

		var (
			id           uuid.UUID
			name         string
			cidrs, hosts []string
			active       bool
		)
		if err := s.db.QueryRow(ctx, query, scopeID).Scan(&id, &name, &cidrs, &hosts, &active); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrScopeNotFound
			}
			return fmt.Errorf("GetScope query error: %w", err)
		}

		boundary = scope.ReconstructScope(id, name, cidrs, hosts, active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return boundary, nil
}
