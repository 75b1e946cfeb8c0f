package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

func setupToolTest(t *testing.T) (context.Context, *pgxpool.Pool, *toolStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewToolStore(db, storage.NoOpTracer())
	ctx := context.Background()

	return ctx, db, store, cleanup
}

func TestToolStore_UpsertAndGet(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupToolTest(t)
	defer cleanup()

	manifest := &catalog.ToolManifest{
		DefaultParams:  json.RawMessage(`{"ports": "1-1024", "rate": 500}`),
		DefaultTimeout: 30 * time.Minute,
	}
	tool := catalog.NewTool("Nmap", "nmap", true, manifest)

	err := store.UpsertTool(ctx, tool)
	require.NoError(t, err)

	loaded, err := store.GetTool(ctx, tool.ToolID())
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, tool.ToolID(), loaded.ToolID())
	assert.Equal(t, "Nmap", loaded.Name())
	assert.Equal(t, "nmap", loaded.Slug())
	assert.True(t, loaded.Enabled())
	require.NotNil(t, loaded.Manifest())
	assert.JSONEq(t, string(manifest.DefaultParams), string(loaded.Manifest().DefaultParams))
	assert.Equal(t, 30*time.Minute, loaded.Manifest().DefaultTimeout)

	bySlug, err := store.GetToolBySlug(ctx, "nmap")
	require.NoError(t, err)
	assert.Equal(t, tool.ToolID(), bySlug.ToolID())
}

func TestToolStore_UpsertKeepsExistingID(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupToolTest(t)
	defer cleanup()

	original := catalog.NewTool("Nmap", "nmap", true, &catalog.ToolManifest{
		DefaultParams:  json.RawMessage(`{"ports": "1-1024"}`),
		DefaultTimeout: 30 * time.Minute,
	})
	require.NoError(t, store.UpsertTool(ctx, original))

	// Re-seeding the same slug updates the record in place.
	reseeded := catalog.NewTool("Nmap (full)", "nmap", false, &catalog.ToolManifest{
		DefaultParams:  json.RawMessage(`{"ports": "1-65535"}`),
		DefaultTimeout: 2 * time.Hour,
	})
	require.NoError(t, store.UpsertTool(ctx, reseeded))

	loaded, err := store.GetToolBySlug(ctx, "nmap")
	require.NoError(t, err)

	assert.Equal(t, original.ToolID(), loaded.ToolID(), "Upsert by slug must not mint a new tool ID")
	assert.Equal(t, "Nmap (full)", loaded.Name())
	assert.False(t, loaded.Enabled())
	require.NotNil(t, loaded.Manifest())
	assert.JSONEq(t, `{"ports": "1-65535"}`, string(loaded.Manifest().DefaultParams))
	assert.Equal(t, 2*time.Hour, loaded.Manifest().DefaultTimeout)
}

func TestToolStore_GetNonExistent(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupToolTest(t)
	defer cleanup()

	loaded, err := store.GetTool(ctx, uuid.New())
	require.ErrorIs(t, err, catalog.ErrToolNotFound)
	assert.Nil(t, loaded)

	loaded, err = store.GetToolBySlug(ctx, "no-such-tool")
	require.ErrorIs(t, err, catalog.ErrToolNotFound)
	assert.Nil(t, loaded)
}

func TestToolStore_NilManifest(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupToolTest(t)
	defer cleanup()

	tool := catalog.NewTool("Custom Probe", "probe", false, nil)
	require.NoError(t, store.UpsertTool(ctx, tool))

	loaded, err := store.GetTool(ctx, tool.ToolID())
	require.NoError(t, err)
	assert.Nil(t, loaded.Manifest(), "A tool seeded without a manifest stays manifest-less")
	assert.False(t, loaded.Enabled())
}

func TestToolStore_ListTools(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupToolTest(t)
	defer cleanup()

	for _, slug := range []string{"zap", "amass", "nmap"} {
		tool := catalog.NewTool(slug, slug, true, nil)
		require.NoError(t, store.UpsertTool(ctx, tool))
	}

	tools, err := store.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 3)

	slugs := make([]string, 0, len(tools))
	for _, tool := range tools {
		slugs = append(slugs, tool.Slug())
	}
	assert.Equal(t, []string{"amass", "nmap", "zap"}, slugs)
}
