package scanning

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTimeProvider implements TimeProvider for testing.
type mockTimeProvider struct{ currentTime time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.currentTime }

func TestNewRun(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	toolID := uuid.New()
	mockTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mockProvider := &mockTimeProvider{currentTime: mockTime}

	run := NewRun(userID, toolID, nil, "10.0.0.5", json.RawMessage(`{"ports":"1-1024"}`), 5*time.Minute, WithTimeProvider(mockProvider))

	assert.NotNil(t, run)
	assert.NotEqual(t, uuid.Nil, run.RunID())
	assert.Equal(t, userID, run.UserID())
	assert.Equal(t, toolID, run.ToolID())
	assert.Nil(t, run.ScopeID())
	assert.Equal(t, "10.0.0.5", run.Target())
	assert.Equal(t, RunStatusPending, run.Status())
	assert.Equal(t, 5*time.Minute, run.Timeout())

	assert.Equal(t, mockTime, run.CreatedAt())
	assert.True(t, run.StartedAt().IsZero())
	assert.True(t, run.CompletedAt().IsZero())

	assert.Nil(t, run.ExitCode())
	assert.Empty(t, run.ErrorMessage())
}

func TestRun_Start(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)

	require.NoError(t, run.Start())
	assert.Equal(t, RunStatusRunning, run.Status())
	assert.False(t, run.StartedAt().IsZero())

	// A second Start must fail; the run already left PENDING.
	assert.Error(t, run.Start())
}

func TestRun_StartAfterCancel(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
	require.NoError(t, run.Cancel())

	// The worker uses this failure as its dequeue-time guard for runs
	// cancelled before pickup.
	err := run.Start()
	require.Error(t, err)
	assert.Equal(t, RunStatusCancelled, run.Status())
}

func TestRun_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setupRun   func() *Run
		exitCode   int
		wantErr    bool
		wantStatus RunStatus
	}{
		{
			name: "complete running run",
			setupRun: func() *Run {
				run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
				_ = run.Start()
				return run
			},
			exitCode:   0,
			wantStatus: RunStatusCompleted,
		},
		{
			name: "complete pending run is rejected",
			setupRun: func() *Run {
				return NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
			},
			exitCode:   0,
			wantErr:    true,
			wantStatus: RunStatusPending,
		},
		{
			name: "complete after cancel is a no-op",
			setupRun: func() *Run {
				run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
				_ = run.Start()
				_ = run.Cancel()
				return run
			},
			exitCode:   0,
			wantStatus: RunStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := tt.setupRun()
			err := run.Complete(tt.exitCode)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, run.Status())
		})
	}
}

func TestRun_CompleteRecordsExitCode(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
	require.NoError(t, run.Start())
	require.NoError(t, run.Complete(2))

	require.NotNil(t, run.ExitCode())
	assert.Equal(t, 2, *run.ExitCode())
	assert.False(t, run.CompletedAt().IsZero())
}

func TestRun_Fail(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
	require.NoError(t, run.Start())
	require.NoError(t, run.Fail("backend connection refused"))

	assert.Equal(t, RunStatusFailed, run.Status())
	assert.Equal(t, "backend connection refused", run.ErrorMessage())

	// A late failure report against the terminal run changes nothing.
	require.NoError(t, run.Fail("second failure"))
	assert.Equal(t, "backend connection refused", run.ErrorMessage())
}

func TestRun_MarkTimeout(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
	require.NoError(t, run.Start())
	require.NoError(t, run.MarkTimeout("execution exceeded 1m0s"))

	assert.Equal(t, RunStatusTimeout, run.Status())
	assert.Equal(t, "execution exceeded 1m0s", run.ErrorMessage())
}

func TestRun_Cancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setupRun func() *Run
		wantErr  bool
	}{
		{
			name: "cancel pending run",
			setupRun: func() *Run {
				return NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
			},
		},
		{
			name: "cancel running run",
			setupRun: func() *Run {
				run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
				_ = run.Start()
				return run
			},
		},
		{
			name: "cancel completed run is a guard error",
			setupRun: func() *Run {
				run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
				_ = run.Start()
				_ = run.Complete(0)
				return run
			},
			wantErr: true,
		},
		{
			name: "cancel cancelled run is a guard error",
			setupRun: func() *Run {
				run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
				_ = run.Cancel()
				return run
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := tt.setupRun()
			err := run.Cancel()
			if tt.wantErr {
				var stateErr RunInvalidStateError
				require.ErrorAs(t, err, &stateErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, RunStatusCancelled, run.Status())
			assert.False(t, run.CompletedAt().IsZero())
		})
	}
}

func TestRun_CancelCompletedPreservesFields(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
	require.NoError(t, run.Start())
	require.NoError(t, run.Complete(0))

	completedAt := run.CompletedAt()
	exitCode := run.ExitCode()

	err := run.Cancel()
	require.Error(t, err)

	assert.Equal(t, RunStatusCompleted, run.Status())
	assert.Equal(t, completedAt, run.CompletedAt())
	assert.Equal(t, exitCode, run.ExitCode())
}

func TestReconstructRun(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	userID := uuid.New()
	toolID := uuid.New()
	scopeID := uuid.New()
	exitCode := 1
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	startedAt := createdAt.Add(time.Second)
	completedAt := createdAt.Add(time.Minute)

	run := ReconstructRun(
		id, userID, toolID, &scopeID,
		"api.example.com", json.RawMessage(`{}`), 10*time.Minute,
		RunStatusFailed, &exitCode, "scan aborted",
		createdAt, startedAt, completedAt,
	)

	assert.Equal(t, id, run.RunID())
	assert.Equal(t, &scopeID, run.ScopeID())
	assert.Equal(t, RunStatusFailed, run.Status())
	assert.Equal(t, "scan aborted", run.ErrorMessage())
	assert.Equal(t, createdAt, run.CreatedAt())
	assert.Equal(t, startedAt, run.StartedAt())
	assert.Equal(t, completedAt, run.CompletedAt())
	assert.Equal(t, 59*time.Second, run.Duration())
}

func TestRunInvalidStateError(t *testing.T) {
	t.Parallel()

	run := NewRun(uuid.New(), uuid.New(), nil, "example.com", nil, time.Minute)
	require.NoError(t, run.Start())
	require.NoError(t, run.Complete(0))

	err := run.Cancel()

	var stateErr RunInvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, run.RunID(), stateErr.RunID())
	assert.Equal(t, RunStatusCompleted, stateErr.Status())
	assert.Contains(t, err.Error(), "invalid state")
}
