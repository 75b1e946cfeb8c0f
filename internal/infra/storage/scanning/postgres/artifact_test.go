package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
)

func TestArtifactStore_UpsertAndList(t *testing.T) {
	t.Parallel()
	ctx, db, runStore, cleanup := setupRunTest(t)
	defer cleanup()

	userID, toolID := seedRunOwner(t, ctx, db)
	run := createTestRun(t, userID, toolID)
	require.NoError(t, runStore.CreateRun(ctx, run))

	store := NewArtifactStore(db, storage.NoOpTracer())

	stdout := scanning.NewArtifact(run.RunID(), "stdout.log", scanning.ArtifactKindStdout, []byte("PORT   STATE SERVICE\n22/tcp open  ssh"))
	analysis := scanning.NewArtifact(run.RunID(), "analysis.md", scanning.ArtifactKindAnalysis, []byte("SSH exposed on the default port."))
	require.NoError(t, store.UpsertArtifact(ctx, stdout))
	require.NoError(t, store.UpsertArtifact(ctx, analysis))

	artifacts, err := store.ListArtifactsByRun(ctx, run.RunID())
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	byName := make(map[string]*scanning.Artifact, len(artifacts))
	for _, a := range artifacts {
		byName[a.Name()] = a
	}

	require.Contains(t, byName, "stdout.log")
	assert.Equal(t, scanning.ArtifactKindStdout, byName["stdout.log"].Kind())
	assert.Equal(t, stdout.Content(), byName["stdout.log"].Content())
	assert.Equal(t, int64(len(stdout.Content())), byName["stdout.log"].Size())

	require.Contains(t, byName, "analysis.md")
	assert.Equal(t, scanning.ArtifactKindAnalysis, byName["analysis.md"].Kind())
}

func TestArtifactStore_UpsertReplacesContent(t *testing.T) {
	t.Parallel()
	ctx, db, runStore, cleanup := setupRunTest(t)
	defer cleanup()

	userID, toolID := seedRunOwner(t, ctx, db)
	run := createTestRun(t, userID, toolID)
	require.NoError(t, runStore.CreateRun(ctx, run))

	store := NewArtifactStore(db, storage.NoOpTracer())

	first := scanning.NewArtifact(run.RunID(), "stdout.log", scanning.ArtifactKindStdout, []byte("partial"))
	require.NoError(t, store.UpsertArtifact(ctx, first))

	// The worker flushes the same artifact name repeatedly as output grows.
	grown := scanning.NewArtifact(run.RunID(), "stdout.log", scanning.ArtifactKindStdout, []byte("partial output, now complete"))
	require.NoError(t, store.UpsertArtifact(ctx, grown))

	artifacts, err := store.ListArtifactsByRun(ctx, run.RunID())
	require.NoError(t, err)
	require.Len(t, artifacts, 1, "Upserting an existing name should replace, not append")

	assert.Equal(t, []byte("partial output, now complete"), artifacts[0].Content())
	assert.Equal(t, int64(len("partial output, now complete")), artifacts[0].Size())
	assert.Equal(t, first.ArtifactID(), artifacts[0].ArtifactID(), "Replacement should keep the original artifact ID")
	assert.False(t, artifacts[0].UpdatedAt().Before(artifacts[0].CreatedAt()))
}

func TestArtifactStore_ListEmpty(t *testing.T) {
	t.Parallel()
	ctx, db, _, cleanup := setupRunTest(t)
	defer cleanup()

	store := NewArtifactStore(db, storage.NoOpTracer())

	artifacts, err := store.ListArtifactsByRun(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestArtifactStore_ForeignRunRejected(t *testing.T) {
	t.Parallel()
	ctx, db, _, cleanup := setupRunTest(t)
	defer cleanup()

	store := NewArtifactStore(db, storage.NoOpTracer())

	orphan := scanning.NewArtifact(uuid.New(), "stdout.log", scanning.ArtifactKindStdout, []byte("x"))
	err := store.UpsertArtifact(ctx, orphan)
	require.Error(t, err, "Artifacts must reference an existing run")
}
