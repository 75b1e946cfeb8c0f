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
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// userStore implements catalog.UserRepository using PostgreSQL as the backing
// store. User rows are managed externally; this store only reads them to
// resolve caller identities.
var _ catalog.UserRepository = (*userStore)(nil)

type userStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewUserStore creates a new PostgreSQL-backed user repository with tracing capabilities.
func NewUserStore(pool *pgxpool.Pool, tracer trace.Tracer) *userStore {
	return &userStore{db: pool, tracer: tracer}
}

// GetUser retrieves a user by ID.
func (s *userStore) GetUser(ctx context.Context, userID uuid.UUID) (*catalog.User, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("user_id", userID.String()),
	)

	var user *catalog.User
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_user", dbAttrs, func(ctx context.Context) error {
		const query = `SELECT id, username, role FROM users WHERE id = $1`

		var (
			id             uuid.UUID
			username, role string
		)
		if err := s.db.QueryRow(ctx, query, userID).Scan(&id, &username, &role); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrUserNotFound
			}
			return fmt.Errorf("GetUser query error: %w", err)
		}

		user = catalog.ReconstructUser(id, username, catalog.ParseRole(role))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
