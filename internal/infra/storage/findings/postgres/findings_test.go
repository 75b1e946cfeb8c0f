package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage/scanning/postgres"
)

func setupFindingTest(t *testing.T) (context.Context, *pgxpool.Pool, *findingStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewFindingStore(db, storage.NoOpTracer())
	ctx := context.Background()

	return ctx, db, store, cleanup
}

// seedRun creates the user, tool, and run rows a run-owned finding references.
func seedRun(t *testing.T, ctx context.Context, db *pgxpool.Pool) uuid.UUID {
	t.Helper()

	userID, toolID := uuid.New(), uuid.New()

	_, err := db.Exec(ctx, `INSERT INTO users (id, username) VALUES ($1, $2)`,
		userID, "tester-"+userID.String()[:8])
	require.NoError(t, err)

	_, err = db.Exec(ctx, `INSERT INTO tools (id, name, slug) VALUES ($1, 'Web Scanner', $2)`,
		toolID, "scanner-"+toolID.String()[:8])
	require.NoError(t, err)

	runStore := postgres.NewRunStore(db, storage.NoOpTracer())
	run := scanning.NewRun(userID, toolID, nil, "app.corp.example", nil, time.Hour)
	require.NoError(t, runStore.CreateRun(ctx, run))

	return run.RunID()
}

// seedSession creates a session row bound to the given run for session-owned findings.
func seedSession(t *testing.T, ctx context.Context, db *pgxpool.Pool, runID uuid.UUID) uuid.UUID {
	t.Helper()

	var userID uuid.UUID
	require.NoError(t, db.QueryRow(ctx, `SELECT user_id FROM runs WHERE id = $1`, runID).Scan(&userID))

	sessionID := uuid.New()
	_, err := db.Exec(ctx,
		`INSERT INTO workflow_sessions (id, user_id, run_id, name, target, objective, max_steps)
		 VALUES ($1, $2, $3, 'Perimeter audit', 'app.corp.example', 'comprehensive', 25)`,
		sessionID, userID, runID)
	require.NoError(t, err)

	return sessionID
}

func TestFindingStore_CreateAndListByRun(t *testing.T) {
	t.Parallel()
	ctx, db, store, cleanup := setupFindingTest(t)
	defer cleanup()

	runID := seedRun(t, ctx, db)

	finding := findings.NewRunFinding(
		runID,
		findings.SeverityCritical,
		"SQL injection in login form",
		"The username parameter is concatenated into the auth query.",
		findings.WithEvidence("sqlmap confirmed boolean-based blind injection"),
		findings.WithRemediation("Use parameterized queries for all auth lookups."),
		findings.WithExploitation("' OR 1=1 -- bypasses authentication"),
		findings.WithVerification("Replay the payload against a patched build."),
	)
	require.NoError(t, store.CreateFinding(ctx, finding))

	listed, err := store.ListFindingsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	loaded := listed[0]
	assert.Equal(t, finding.FindingID(), loaded.FindingID())
	require.NotNil(t, loaded.RunID())
	assert.Equal(t, runID, *loaded.RunID())
	assert.Nil(t, loaded.SessionID())
	assert.Equal(t, findings.SeverityCritical, loaded.Severity())
	assert.Equal(t, "SQL injection in login form", loaded.Title())
	assert.Equal(t, finding.Description(), loaded.Description())
	assert.Equal(t, finding.Evidence(), loaded.Evidence())
	assert.Equal(t, finding.Remediation(), loaded.Remediation())
	assert.Equal(t, finding.Exploitation(), loaded.Exploitation())
	assert.Equal(t, finding.Verification(), loaded.Verification())
	assert.WithinDuration(t, finding.CreatedAt(), loaded.CreatedAt(), time.Second)
}

func TestFindingStore_CreateAndListBySession(t *testing.T) {
	t.Parallel()
	ctx, db, store, cleanup := setupFindingTest(t)
	defer cleanup()

	runID := seedRun(t, ctx, db)
	sessionID := seedSession(t, ctx, db, runID)

	finding := findings.NewSessionFinding(
		sessionID,
		findings.SeverityMedium,
		"Directory listing enabled",
		"The /backup path exposes a full directory index.",
	)
	require.NoError(t, store.CreateFinding(ctx, finding))

	listed, err := store.ListFindingsBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	loaded := listed[0]
	require.NotNil(t, loaded.SessionID())
	assert.Equal(t, sessionID, *loaded.SessionID())
	assert.Nil(t, loaded.RunID())
	assert.Equal(t, findings.SeverityMedium, loaded.Severity())

	// Session findings must not leak into the bound run's list.
	runFindings, err := store.ListFindingsByRun(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, runFindings)
}

func TestFindingStore_ListOrdersOldestFirst(t *testing.T) {
	t.Parallel()
	ctx, db, store, cleanup := setupFindingTest(t)
	defer cleanup()

	runID := seedRun(t, ctx, db)

	titles := []string{"Open SSH port", "Weak TLS ciphers", "Default credentials"}
	for _, title := range titles {
		finding := findings.NewRunFinding(runID, findings.SeverityLow, title, "")
		require.NoError(t, store.CreateFinding(ctx, finding))
		time.Sleep(5 * time.Millisecond)
	}

	listed, err := store.ListFindingsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	for i, title := range titles {
		assert.Equal(t, title, listed[i].Title())
	}
}

func TestFindingStore_ListByRunEmpty(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupFindingTest(t)
	defer cleanup()

	listed, err := store.ListFindingsByRun(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestFindingStore_DeleteFinding(t *testing.T) {
	t.Parallel()
	ctx, db, store, cleanup := setupFindingTest(t)
	defer cleanup()

	runID := seedRun(t, ctx, db)
	finding := findings.NewRunFinding(runID, findings.SeverityInfo, "Server banner disclosure", "")
	require.NoError(t, store.CreateFinding(ctx, finding))

	require.NoError(t, store.DeleteFinding(ctx, finding.FindingID()))

	listed, err := store.ListFindingsByRun(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	err = store.DeleteFinding(ctx, finding.FindingID())
	require.ErrorIs(t, err, findings.ErrFindingNotFound)
}
