package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

// mockSessionRepo implements workflow.SessionRepository for testing.
type mockSessionRepo struct{ mock.Mock }

func (m *mockSessionRepo) CreateSession(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if session := args.Get(0); session != nil {
		return session.(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepo) UpdateSession(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) UpdateStep(ctx context.Context, step *domain.Step) error {
	args := m.Called(ctx, step)
	return args.Error(0)
}

func (m *mockSessionRepo) ClaimRunning(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) QueuePosition(ctx context.Context, sessionID uuid.UUID) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *mockSessionRepo) NextQueued(ctx context.Context) (*domain.Session, error) {
	args := m.Called(ctx)
	if session := args.Get(0); session != nil {
		return session.(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepo) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessionRepo) ListSessionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Session, error) {
	args := m.Called(ctx, userID, limit, offset)
	if sessions := args.Get(0); sessions != nil {
		return sessions.([]*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockRunRepo implements scanning.RunRepository for testing.
type mockRunRepo struct{ mock.Mock }

func (m *mockRunRepo) CreateRun(ctx context.Context, run *scanning.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockRunRepo) GetRun(ctx context.Context, runID uuid.UUID) (*scanning.Run, error) {
	args := m.Called(ctx, runID)
	if run := args.Get(0); run != nil {
		return run.(*scanning.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunRepo) UpdateRun(ctx context.Context, run *scanning.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockRunRepo) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *mockRunRepo) ListRunsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*scanning.Run, error) {
	args := m.Called(ctx, userID, limit, offset)
	if runs := args.Get(0); runs != nil {
		return runs.([]*scanning.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockArtifactRepo implements scanning.ArtifactRepository for testing.
type mockArtifactRepo struct{ mock.Mock }

func (m *mockArtifactRepo) UpsertArtifact(ctx context.Context, artifact *scanning.Artifact) error {
	args := m.Called(ctx, artifact)
	return args.Error(0)
}

func (m *mockArtifactRepo) ListArtifactsByRun(ctx context.Context, runID uuid.UUID) ([]*scanning.Artifact, error) {
	args := m.Called(ctx, runID)
	if artifacts := args.Get(0); artifacts != nil {
		return artifacts.([]*scanning.Artifact), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockFindingRepo implements findings.FindingRepository for testing.
type mockFindingRepo struct{ mock.Mock }

func (m *mockFindingRepo) CreateFinding(ctx context.Context, finding *findings.Finding) error {
	args := m.Called(ctx, finding)
	return args.Error(0)
}

func (m *mockFindingRepo) ListFindingsByRun(ctx context.Context, runID uuid.UUID) ([]*findings.Finding, error) {
	args := m.Called(ctx, runID)
	if list := args.Get(0); list != nil {
		return list.([]*findings.Finding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFindingRepo) ListFindingsBySession(ctx context.Context, sessionID uuid.UUID) ([]*findings.Finding, error) {
	args := m.Called(ctx, sessionID)
	if list := args.Get(0); list != nil {
		return list.([]*findings.Finding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFindingRepo) DeleteFinding(ctx context.Context, findingID uuid.UUID) error {
	args := m.Called(ctx, findingID)
	return args.Error(0)
}

// mockToolRepo implements catalog.ToolRepository for testing.
type mockToolRepo struct{ mock.Mock }

func (m *mockToolRepo) GetTool(ctx context.Context, toolID uuid.UUID) (*catalog.Tool, error) {
	args := m.Called(ctx, toolID)
	if tool := args.Get(0); tool != nil {
		return tool.(*catalog.Tool), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockToolRepo) GetToolBySlug(ctx context.Context, slug string) (*catalog.Tool, error) {
	args := m.Called(ctx, slug)
	if tool := args.Get(0); tool != nil {
		return tool.(*catalog.Tool), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockToolRepo) UpsertTool(ctx context.Context, tool *catalog.Tool) error {
	args := m.Called(ctx, tool)
	return args.Error(0)
}

func (m *mockToolRepo) ListTools(ctx context.Context) ([]*catalog.Tool, error) {
	args := m.Called(ctx)
	if tools := args.Get(0); tools != nil {
		return tools.([]*catalog.Tool), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockStreamBroker implements scanning.StreamBroker for testing.
type mockStreamBroker struct{ mock.Mock }

func (m *mockStreamBroker) Publish(ctx context.Context, evt scanning.StreamEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *mockStreamBroker) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan scanning.StreamEvent, func(), error) {
	args := m.Called(ctx, runID)
	if ch := args.Get(0); ch != nil {
		return ch.(<-chan scanning.StreamEvent), args.Get(1).(func()), args.Error(2)
	}
	return nil, nil, args.Error(2)
}

// mockExecutionBackend implements scanning.ExecutionBackend for testing.
type mockExecutionBackend struct{ mock.Mock }

func (m *mockExecutionBackend) Execute(
	ctx context.Context,
	req scanning.ExecutionRequest,
	hooks scanning.ExecutionHooks,
) (*scanning.ExecutionResult, error) {
	args := m.Called(ctx, req, hooks)
	if result := args.Get(0); result != nil {
		return result.(*scanning.ExecutionResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExecutionBackend) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// mockDomainEventPublisher implements events.DomainEventPublisher for testing.
type mockDomainEventPublisher struct{ mock.Mock }

func (m *mockDomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	args := m.Called(ctx, event, opts)
	return args.Error(0)
}

// workflowMocks bundles every collaborator the orchestrator and session
// service share.
type workflowMocks struct {
	sessions  *mockSessionRepo
	runs      *mockRunRepo
	artifacts *mockArtifactRepo
	findings  *mockFindingRepo
	tools     *mockToolRepo
	backend   *mockExecutionBackend
	broker    *mockStreamBroker
	publisher *mockDomainEventPublisher
}

func newWorkflowMocks() *workflowMocks {
	return &workflowMocks{
		sessions:  new(mockSessionRepo),
		runs:      new(mockRunRepo),
		artifacts: new(mockArtifactRepo),
		findings:  new(mockFindingRepo),
		tools:     new(mockToolRepo),
		backend:   new(mockExecutionBackend),
		broker:    new(mockStreamBroker),
		publisher: new(mockDomainEventPublisher),
	}
}

func setupOrchestratorTest(opts ...OrchestratorOption) (*Orchestrator, *workflowMocks) {
	m := newWorkflowMocks()
	orch := NewOrchestrator(
		m.sessions,
		m.runs,
		m.artifacts,
		m.findings,
		m.backend,
		m.broker,
		m.publisher,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
		opts...,
	)
	return orch, m
}

func setupServiceTest(opts ...OrchestratorOption) (*SessionService, *workflowMocks) {
	m := newWorkflowMocks()
	tracer := noop.NewTracerProvider().Tracer("test")
	orch := NewOrchestrator(
		m.sessions,
		m.runs,
		m.artifacts,
		m.findings,
		m.backend,
		m.broker,
		m.publisher,
		logger.Noop(),
		tracer,
		opts...,
	)
	svc := NewSessionService(
		m.sessions,
		m.runs,
		m.findings,
		m.tools,
		orch,
		m.broker,
		m.backend,
		m.publisher,
		logger.Noop(),
		tracer,
	)
	return svc, m
}

func newTestUser(role catalog.Role) *catalog.User {
	return catalog.ReconstructUser(uuid.New(), "auditor", role)
}

// newRunningSession builds a session that already won the execution slot,
// the shape a driver sees right after the storage-level claim.
func newRunningSession(userID uuid.UUID) *domain.Session {
	session := domain.NewSession(userID, uuid.New(), "Assessment of 10.0.0.5", "10.0.0.5", domain.ObjectiveComprehensive, 20)
	if err := session.Start(); err != nil {
		panic(err)
	}
	return session
}

// newBoundRun builds the PENDING run a freshly created session references.
func newBoundRun(session *domain.Session) *scanning.Run {
	return scanning.ReconstructRun(
		session.RunID(), session.UserID(), uuid.New(), nil,
		session.Target(), nil, defaultSessionTimeout,
		scanning.RunStatusPending, nil, "",
		session.CreatedAt(), time.Time{}, time.Time{},
	)
}
