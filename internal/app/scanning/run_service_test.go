package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scope"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

type runServiceMocks struct {
	runs      *mockRunRepo
	artifacts *mockArtifactRepo
	findings  *mockFindingRepo
	tools     *mockToolRepo
	scopes    *mockScopeRepo
	queue     *mockJobQueue
	broker    *mockStreamBroker
	backend   *mockExecutionBackend
	publisher *mockDomainEventPublisher
}

func setupRunServiceTest() (*RunService, *runServiceMocks) {
	m := &runServiceMocks{
		runs:      new(mockRunRepo),
		artifacts: new(mockArtifactRepo),
		findings:  new(mockFindingRepo),
		tools:     new(mockToolRepo),
		scopes:    new(mockScopeRepo),
		queue:     new(mockJobQueue),
		broker:    new(mockStreamBroker),
		backend:   new(mockExecutionBackend),
		publisher: new(mockDomainEventPublisher),
	}

	tracer := noop.NewTracerProvider().Tracer("test")
	authorizer := NewTargetAuthorizer(m.scopes, logger.Noop(), tracer)
	svc := NewRunService(
		m.runs,
		m.artifacts,
		m.findings,
		m.tools,
		authorizer,
		m.queue,
		m.broker,
		m.backend,
		m.publisher,
		logger.Noop(),
		tracer,
	)

	return svc, m
}

func newTestTool(slug string, enabled bool, manifest *catalog.ToolManifest) *catalog.Tool {
	return catalog.ReconstructTool(uuid.New(), slug, slug, enabled, manifest)
}

func newTestManifest() *catalog.ToolManifest {
	return &catalog.ToolManifest{
		DefaultParams:  json.RawMessage(`{"ports": "1-1024"}`),
		DefaultTimeout: 15 * time.Minute,
	}
}

func reconstructTerminalRun(userID uuid.UUID, status scanning.RunStatus) *scanning.Run {
	exitCode := 0
	now := time.Now()
	return scanning.ReconstructRun(
		uuid.New(), userID, uuid.New(), nil,
		"10.0.0.20", nil, time.Hour,
		status, &exitCode, "",
		now.Add(-time.Minute), now.Add(-30*time.Second), now,
	)
}

func TestCreateRun_UsesManifestDefaults(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())

	m.tools.On("GetToolBySlug", mock.Anything, "nmap").Return(tool, nil)
	m.runs.On("CreateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(job scanning.RunJobQueuedEvent) bool {
		return job.Target == "10.0.0.20" && job.RequestedBy == user.UserID()
	})).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.MatchedBy(func(evt scanning.StreamEvent) bool {
		return evt.Type == scanning.StreamEventTypeInit
	})).Return(nil)

	run, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:   user,
		Tool:   "nmap",
		Target: "  10.0.0.20  ",
	})

	require.NoError(t, err)
	assert.Equal(t, scanning.RunStatusPending, run.Status())
	assert.Equal(t, "10.0.0.20", run.Target(), "target should be trimmed before storage")
	assert.JSONEq(t, `{"ports": "1-1024"}`, string(run.Params()))
	assert.Equal(t, 15*time.Minute, run.Timeout())
	assert.Equal(t, user.UserID(), run.UserID())
	assert.Equal(t, tool.ToolID(), run.ToolID())

	m.runs.AssertExpectations(t)
	m.queue.AssertExpectations(t)
	m.broker.AssertExpectations(t)
}

func TestCreateRun_ResolvesToolByID(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("zap", true, newTestManifest())

	m.tools.On("GetTool", mock.Anything, tool.ToolID()).Return(tool, nil)
	m.runs.On("CreateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.queue.On("Enqueue", mock.Anything, mock.AnythingOfType("scanning.RunJobQueuedEvent")).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)

	run, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:   user,
		Tool:   tool.ToolID().String(),
		Target: "app.corp.example",
	})

	require.NoError(t, err)
	assert.Equal(t, tool.ToolID(), run.ToolID())
	m.tools.AssertNotCalled(t, "GetToolBySlug", mock.Anything, mock.Anything)
}

func TestCreateRun_CallerOverridesDefaults(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())

	m.tools.On("GetToolBySlug", mock.Anything, "nmap").Return(tool, nil)
	m.runs.On("CreateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.queue.On("Enqueue", mock.Anything, mock.AnythingOfType("scanning.RunJobQueuedEvent")).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)

	run, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:    user,
		Tool:    "nmap",
		Target:  "10.0.0.20",
		Params:  json.RawMessage(`{"rate": 50}`),
		Timeout: 2 * time.Minute,
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"rate": 50}`, string(run.Params()))
	assert.Equal(t, 2*time.Minute, run.Timeout())
}

func TestCreateRun_UnknownTool(t *testing.T) {
	svc, m := setupRunServiceTest()

	m.tools.On("GetToolBySlug", mock.Anything, "ghost").Return(nil, catalog.ErrToolNotFound)

	_, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:   newTestUser(catalog.RoleUser),
		Tool:   "ghost",
		Target: "10.0.0.20",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrToolNotFound)
	m.runs.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestCreateRun_DisabledTool(t *testing.T) {
	svc, m := setupRunServiceTest()
	tool := newTestTool("nikto", false, newTestManifest())

	m.tools.On("GetToolBySlug", mock.Anything, "nikto").Return(tool, nil)

	_, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:   newTestUser(catalog.RoleUser),
		Tool:   "nikto",
		Target: "10.0.0.20",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrToolDisabled)
	m.runs.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestCreateRun_ToolWithoutManifest(t *testing.T) {
	svc, m := setupRunServiceTest()
	tool := newTestTool("amass", true, nil)

	m.tools.On("GetToolBySlug", mock.Anything, "amass").Return(tool, nil)

	_, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:   newTestUser(catalog.RoleUser),
		Tool:   "amass",
		Target: "10.0.0.20",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrToolMissingManifest)
	m.runs.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestCreateRun_ScopeRejectsTarget(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())
	scopeID := uuid.New()
	sc := scope.ReconstructScope(scopeID, "lab", []string{"10.0.0.0/24"}, nil, true)

	m.tools.On("GetToolBySlug", mock.Anything, "nmap").Return(tool, nil)
	m.scopes.On("GetScope", mock.Anything, scopeID).Return(sc, nil)

	_, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:    user,
		Tool:    "nmap",
		ScopeID: &scopeID,
		Target:  "203.0.113.9",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTargetOutOfScope)
	m.runs.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
	m.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestCreateRun_EnqueueFailureFailsRun(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())

	m.tools.On("GetToolBySlug", mock.Anything, "nmap").Return(tool, nil)
	m.runs.On("CreateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.queue.On("Enqueue", mock.Anything, mock.AnythingOfType("scanning.RunJobQueuedEvent")).
		Return(errors.New("broker unreachable"))
	m.runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(run *scanning.Run) bool {
		return run.Status() == scanning.RunStatusFailed
	})).Return(nil)

	_, err := svc.CreateRun(context.Background(), CreateRunCommand{
		User:   user,
		Tool:   "nmap",
		Target: "10.0.0.20",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue run job")
	m.runs.AssertExpectations(t)
	m.broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestGetRun_ReturnsDetail(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	run := scanning.NewRun(user.UserID(), uuid.New(), nil, "10.0.0.20", nil, time.Hour)

	artifacts := []*scanning.Artifact{
		scanning.NewArtifact(run.RunID(), "stdout", scanning.ArtifactKindStdout, []byte("scan output")),
	}
	findingList := []*findings.Finding{
		findings.NewRunFinding(run.RunID(), findings.SeverityLow, "Verbose banner", "Service discloses its version"),
	}

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.artifacts.On("ListArtifactsByRun", mock.Anything, run.RunID()).Return(artifacts, nil)
	m.findings.On("ListFindingsByRun", mock.Anything, run.RunID()).Return(findingList, nil)

	detail, err := svc.GetRun(context.Background(), user, run.RunID())

	require.NoError(t, err)
	assert.Same(t, run, detail.Run)
	require.Len(t, detail.Artifacts, 1)
	assert.Equal(t, "stdout", detail.Artifacts[0].Name())
	require.Len(t, detail.Findings, 1)
	assert.Equal(t, "Verbose banner", detail.Findings[0].Title())
}

func TestGetRun_DeniesForeignRun(t *testing.T) {
	svc, m := setupRunServiceTest()
	owner := newTestUser(catalog.RoleUser)
	caller := newTestUser(catalog.RoleUser)
	run := scanning.NewRun(owner.UserID(), uuid.New(), nil, "10.0.0.20", nil, time.Hour)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)

	_, err := svc.GetRun(context.Background(), caller, run.RunID())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunAccessDenied)
	m.artifacts.AssertNotCalled(t, "ListArtifactsByRun", mock.Anything, mock.Anything)
}

func TestGetRun_AdminReadsAnyRun(t *testing.T) {
	svc, m := setupRunServiceTest()
	owner := newTestUser(catalog.RoleUser)
	admin := newTestUser(catalog.RoleAdmin)
	run := scanning.NewRun(owner.UserID(), uuid.New(), nil, "10.0.0.20", nil, time.Hour)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.artifacts.On("ListArtifactsByRun", mock.Anything, run.RunID()).Return([]*scanning.Artifact{}, nil)
	m.findings.On("ListFindingsByRun", mock.Anything, run.RunID()).Return([]*findings.Finding{}, nil)

	detail, err := svc.GetRun(context.Background(), admin, run.RunID())

	require.NoError(t, err)
	assert.Same(t, run, detail.Run)
}

func TestListRuns_ClampsPaging(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)

	m.runs.On("ListRunsByUser", mock.Anything, user.UserID(), defaultListLimit, 0).
		Return([]*scanning.Run{}, nil).Once()
	m.runs.On("ListRunsByUser", mock.Anything, user.UserID(), maxListLimit, 0).
		Return([]*scanning.Run{}, nil).Once()

	_, err := svc.ListRuns(context.Background(), user, 0, -5)
	require.NoError(t, err)

	_, err = svc.ListRuns(context.Background(), user, 500, 0)
	require.NoError(t, err)

	m.runs.AssertExpectations(t)
}

func TestStopRun_CancelsPendingRun(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	run := scanning.NewRun(user.UserID(), uuid.New(), nil, "10.0.0.20", nil, time.Hour)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *scanning.Run) bool {
		return r.Status() == scanning.RunStatusCancelled
	})).Return(nil)
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.MatchedBy(func(evt events.DomainEvent) bool {
		cancelled, ok := evt.Payload.(scanning.RunCancelledEvent)
		return ok && cancelled.RunID == run.RunID() && cancelled.RequestedBy == user.UserID()
	}), mock.AnythingOfType("[]events.PublishOption")).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.MatchedBy(func(evt scanning.StreamEvent) bool {
		return evt.Type == scanning.StreamEventTypeFailed
	})).Return(nil)

	resetCalled := make(chan struct{})
	m.backend.On("Reset", mock.Anything).Run(func(mock.Arguments) { close(resetCalled) }).Return(nil)

	stopped, err := svc.StopRun(context.Background(), user, run.RunID())

	require.NoError(t, err)
	assert.Equal(t, scanning.RunStatusCancelled, stopped.Status())

	select {
	case <-resetCalled:
	case <-time.After(time.Second):
		t.Fatal("expected a backend reset after stop")
	}

	m.runs.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
	m.broker.AssertExpectations(t)
}

func TestStopRun_TerminalRunConflict(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	run := reconstructTerminalRun(user.UserID(), scanning.RunStatusCompleted)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)

	_, err := svc.StopRun(context.Background(), user, run.RunID())

	require.Error(t, err)
	var stateErr scanning.RunInvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, scanning.RunStatusCompleted, stateErr.Status())
	assert.Equal(t, scanning.RunStatusCompleted, run.Status(), "guard error must not mutate the run")
	m.runs.AssertNotCalled(t, "UpdateRun", mock.Anything, mock.Anything)
	m.backend.AssertNotCalled(t, "Reset", mock.Anything)
}

func TestStopRun_DeniesForeignRun(t *testing.T) {
	svc, m := setupRunServiceTest()
	owner := newTestUser(catalog.RoleUser)
	caller := newTestUser(catalog.RoleUser)
	run := scanning.NewRun(owner.UserID(), uuid.New(), nil, "10.0.0.20", nil, time.Hour)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)

	_, err := svc.StopRun(context.Background(), caller, run.RunID())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunAccessDenied)
	assert.Equal(t, scanning.RunStatusPending, run.Status())
}

func TestDeleteRun_StopsThenRemoves(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	run := scanning.NewRun(user.UserID(), uuid.New(), nil, "10.0.0.20", nil, time.Hour)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *scanning.Run) bool {
		return r.Status() == scanning.RunStatusCancelled
	})).Return(nil)
	m.runs.On("DeleteRun", mock.Anything, run.RunID()).Return(nil)
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)
	m.backend.On("Reset", mock.Anything).Return(nil)

	err := svc.DeleteRun(context.Background(), user, run.RunID())

	require.NoError(t, err)
	m.runs.AssertExpectations(t)
}

func TestDeleteRun_TerminalRunConflict(t *testing.T) {
	svc, m := setupRunServiceTest()
	user := newTestUser(catalog.RoleUser)
	run := reconstructTerminalRun(user.UserID(), scanning.RunStatusCompleted)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)

	err := svc.DeleteRun(context.Background(), user, run.RunID())

	require.Error(t, err)
	var stateErr scanning.RunInvalidStateError
	require.True(t, errors.As(err, &stateErr))
	m.runs.AssertNotCalled(t, "DeleteRun", mock.Anything, mock.Anything)
}
