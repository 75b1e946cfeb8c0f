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

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

// toolStore implements catalog.ToolRepository using PostgreSQL as the backing
// store. Tool rows are keyed by slug for upserts so manifest-driven seeding
// can run repeatedly without duplicating tools or churning their IDs.
var _ catalog.ToolRepository = (*toolStore)(nil)

type toolStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewToolStore creates a new PostgreSQL-backed tool repository with tracing capabilities.
func NewToolStore(pool *pgxpool.Pool, tracer trace.Tracer) *toolStore {
	return &toolStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// GetTool retrieves a tool by ID.
func (s *toolStore) GetTool(ctx context.Context, toolID uuid.UUID) (*catalog.Tool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("tool_id", toolID.String()),
	)

	return s.getTool(ctx, "postgres.get_tool", dbAttrs,
		`SELECT id, name, slug, enabled, default_params, default_timeout_ms FROM tools WHERE id = $1`, toolID)
}

// GetToolBySlug retrieves a tool by its slug.
func (s *toolStore) GetToolBySlug(ctx context.Context, slug string) (*catalog.Tool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("slug", slug),
	)

	return s.getTool(ctx, "postgres.get_tool_by_slug", dbAttrs,
		`SELECT id, name, slug, enabled, default_params, default_timeout_ms FROM tools WHERE slug = $1`, slug)
}

// UpsertTool writes a tool record keyed by slug. An existing tool keeps its
// ID; name, enabled flag, and manifest defaults are replaced.
func (s *toolStore) UpsertTool(ctx context.Context, tool *catalog.Tool) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("slug", tool.Slug()),
		attribute.Bool("enabled", tool.Enabled()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.upsert_tool", dbAttrs, func(ctx context.Context) error {
		const query = `
			INSERT INTO tools (id, name, slug, enabled, default_params, default_timeout_ms)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				enabled = EXCLUDED.enabled,
				default_params = EXCLUDED.default_params,
				default_timeout_ms = EXCLUDED.default_timeout_ms,
				updated_at = NOW()`

		var params json.RawMessage
		var timeoutMS pgtype.Int8
		if manifest := tool.Manifest(); manifest != nil {
			params = manifest.DefaultParams
			timeoutMS = pgtype.Int8{Int64: manifest.DefaultTimeout.Milliseconds(), Valid: true}
		}

		_, err := s.db.Exec(ctx, query,
			tool.ToolID(),
			tool.Name(),
			tool.Slug(),
			tool.Enabled(),
			params,
			timeoutMS,
		)
		if err != nil {
			return fmt.Errorf("UpsertTool query error: %w", err)
		}
		return nil
	})
}

// ListTools retrieves every tool in the catalog, ordered by slug.
func (s *toolStore) ListTools(ctx context.Context) ([]*catalog.Tool, error) {
	var tools []*catalog.Tool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_tools", defaultDBAttributes, func(ctx context.Context) error {
		const query = `SELECT id, name, slug, enabled, default_params, default_timeout_ms FROM tools ORDER BY slug ASC`

		rows, err := s.db.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("ListTools query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			tool, err := scanTool(rows)
			if err != nil {
				return fmt.Errorf("ListTools scan error: %w", err)
			}
			tools = append(tools, tool)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return tools, nil
}

func (s *toolStore) getTool(
	ctx context.Context,
	spanName string,
	dbAttrs []attribute.KeyValue,
	query string,
	arg any,
) (*catalog.Tool, error) {
	var tool *catalog.Tool
	err := storage.ExecuteAndTrace(ctx, s.tracer, spanName, dbAttrs, func(ctx context.Context) error {
		loaded, err := scanTool(s.db.QueryRow(ctx, query, arg))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrToolNotFound
			}
			return fmt.Errorf("get tool query error: %w", err)
		}

		tool = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tool, nil
}

// scanTool reconstructs a Tool from one row. A tool whose manifest columns
// are both NULL reconstructs with a nil manifest.
func scanTool(row pgx.Row) (*catalog.Tool, error) {
	var (
		id         uuid.UUID
		name, slug string
		enabled    bool
		params     json.RawMessage
		timeoutMS  pgtype.Int8
	)

	if err := row.Scan(&id, &name, &slug, &enabled, &params, &timeoutMS); err != nil {
		return nil, err
	}

	var manifest *catalog.ToolManifest
	if params != nil || timeoutMS.Valid {
		manifest = &catalog.ToolManifest{
			DefaultParams:  params,
			DefaultTimeout: time.Duration(timeoutMS.Int64) * time.Millisecond,
		}
	}

	return catalog.ReconstructTool(id, name, slug, enabled, manifest), nil
}
