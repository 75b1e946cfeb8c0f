package scanning

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scope"
)

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

// mockScopeRepo implements catalog.ScopeRepository for testing.
type mockScopeRepo struct{ mock.Mock }

func (m *mockScopeRepo) GetScope(ctx context.Context, scopeID uuid.UUID) (*scope.Scope, error) {
	args := m.Called(ctx, scopeID)
	if sc := args.Get(0); sc != nil {
		return sc.(*scope.Scope), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockJobQueue implements scanning.RunJobQueue for testing.
type mockJobQueue struct{ mock.Mock }

func (m *mockJobQueue) Enqueue(ctx context.Context, job scanning.RunJobQueuedEvent) error {
	args := m.Called(ctx, job)
	return args.Error(0)
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

// mockEventBus implements events.EventBus for testing.
type mockEventBus struct{ mock.Mock }

func (m *mockEventBus) Publish(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	args := m.Called(ctx, event, opts)
	return args.Error(0)
}

func (m *mockEventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	args := m.Called(ctx, eventTypes, handler)
	return args.Error(0)
}

func (m *mockEventBus) Close() error {
	args := m.Called()
	return args.Error(0)
}
