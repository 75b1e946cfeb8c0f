package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

type workerMocks struct {
	runs      *mockRunRepo
	artifacts *mockArtifactRepo
	tools     *mockToolRepo
	backend   *mockExecutionBackend
	broker    *mockStreamBroker
	bus       *mockEventBus
	publisher *mockDomainEventPublisher
}

func setupWorkerTest() (*ScanWorker, *workerMocks) {
	m := &workerMocks{
		runs:      new(mockRunRepo),
		artifacts: new(mockArtifactRepo),
		tools:     new(mockToolRepo),
		backend:   new(mockExecutionBackend),
		broker:    new(mockStreamBroker),
		bus:       new(mockEventBus),
		publisher: new(mockDomainEventPublisher),
	}

	worker := NewScanWorker(
		m.runs,
		m.artifacts,
		m.tools,
		m.backend,
		m.broker,
		m.bus,
		m.publisher,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)

	return worker, m
}

// dispatchJob feeds one queued job through the worker's bus handler and
// records how it was acknowledged.
func dispatchJob(w *ScanWorker, run *scanning.Run) (handlerErr, ackErr error, acked bool) {
	job := scanning.NewRunJobQueuedEvent(run.RunID(), run.Target(), run.UserID())
	evt := events.DomainEvent{Type: scanning.EventTypeRunJobQueued, Payload: job}

	handlerErr = w.handleJobEvent(context.Background(), evt, func(err error) {
		acked = true
		ackErr = err
	})
	return handlerErr, ackErr, acked
}

func newPendingRun(userID uuid.UUID, toolID uuid.UUID) *scanning.Run {
	return scanning.NewRun(userID, toolID, nil, "10.0.0.20", json.RawMessage(`{"ports": "1-1024"}`), time.Hour)
}

func TestWorkerStart_SubscribesToJobQueue(t *testing.T) {
	worker, m := setupWorkerTest()

	m.bus.On("Subscribe",
		mock.Anything,
		[]events.EventType{scanning.EventTypeRunJobQueued},
		mock.AnythingOfType("events.HandlerFunc"),
	).Return(nil)

	require.NoError(t, worker.Start(context.Background()))
	m.bus.AssertExpectations(t)
}

func TestWorker_SuccessfulExecution(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())
	run := newPendingRun(user.UserID(), tool.ToolID())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.tools.On("GetTool", mock.Anything, tool.ToolID()).Return(tool, nil)

	result := &scanning.ExecutionResult{
		Analysis: "Target exposes SSH and an outdated Apache instance.",
		SubInvocations: []scanning.SubInvocation{
			{
				Name:     "nmap",
				Params:   json.RawMessage(`{"ports": "1-1024"}`),
				Stdout:   "22/tcp open ssh\n80/tcp open http",
				ExitCode: 0,
				Duration: 1500 * time.Millisecond,
			},
			{
				Name:     "whatweb",
				Stdout:   "Apache/2.4.49",
				Stderr:   "warn: slow response",
				ExitCode: 0,
				Duration: 700 * time.Millisecond,
			},
		},
		TokensUsed: 2100,
	}

	m.backend.On("Execute", mock.Anything, mock.MatchedBy(func(req scanning.ExecutionRequest) bool {
		return req.RunID == run.RunID() &&
			req.Task == "nmap" &&
			req.Target == "10.0.0.20" &&
			req.Timeout == time.Hour
	}), mock.AnythingOfType("scanning.ExecutionHooks")).
		Run(func(args mock.Arguments) {
			hooks := args.Get(2).(scanning.ExecutionHooks)
			hooks.OnToolStart("nmap", json.RawMessage(`{"ports": "1-1024"}`))
			hooks.OnOutput([]byte("22/tcp open ssh\n"))
			hooks.OnOutput([]byte("80/tcp open http\n"))
			hooks.OnToolComplete("nmap", 0, 1500*time.Millisecond)
			hooks.OnProgress("analyzing service banners")
		}).
		Return(result, nil)

	var persisted []*scanning.Artifact
	m.artifacts.On("UpsertArtifact", mock.Anything, mock.AnythingOfType("*scanning.Artifact")).
		Run(func(args mock.Arguments) {
			persisted = append(persisted, args.Get(1).(*scanning.Artifact))
		}).
		Return(nil)

	var streamed []scanning.StreamEvent
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).
		Run(func(args mock.Arguments) {
			streamed = append(streamed, args.Get(1).(scanning.StreamEvent))
		}).
		Return(nil)

	var audited []events.DomainEvent
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.AnythingOfType("events.DomainEvent"), mock.Anything).
		Run(func(args mock.Arguments) {
			audited = append(audited, args.Get(1).(events.DomainEvent))
		}).
		Return(nil)

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	require.NoError(t, ackErr)
	assert.True(t, acked)

	assert.Equal(t, scanning.RunStatusCompleted, run.Status())
	require.NotNil(t, run.ExitCode())
	assert.Equal(t, 0, *run.ExitCode())

	byName := make(map[string]*scanning.Artifact)
	for _, artifact := range persisted {
		byName[artifact.Name()] = artifact
	}
	require.Contains(t, byName, "stdout")
	require.Contains(t, byName, "stderr")
	require.Contains(t, byName, "analysis")
	require.Contains(t, byName, "tool_metadata")
	assert.Equal(t, "22/tcp open ssh\n80/tcp open http\n", string(byName["stdout"].Content()))
	assert.Equal(t, "warn: slow response", string(byName["stderr"].Content()))
	assert.Equal(t, result.Analysis, string(byName["analysis"].Content()))

	var records []invocationRecord
	require.NoError(t, json.Unmarshal(byName["tool_metadata"].Content(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "nmap", records[0].Name)
	assert.Equal(t, int64(1500), records[0].DurationMS)
	assert.Equal(t, "whatweb", records[1].Name)

	types := make([]scanning.StreamEventType, 0, len(streamed))
	for _, evt := range streamed {
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, scanning.StreamEventTypeToolStart)
	assert.Contains(t, types, scanning.StreamEventTypeToolComplete)
	assert.Contains(t, types, scanning.StreamEventTypeProgress)
	assert.Contains(t, types, scanning.StreamEventTypeOutput)
	require.NotEmpty(t, types)
	assert.Equal(t, scanning.StreamEventTypeCompleted, types[len(types)-1], "terminal event closes the stream")

	require.Len(t, audited, 2)
	assert.Equal(t, scanning.EventTypeRunStarted, audited[0].Type)
	assert.Equal(t, scanning.EventTypeRunCompleted, audited[1].Type)
}

func TestWorker_SubInvocationErrorSetsExitCode(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())
	run := newPendingRun(user.UserID(), tool.ToolID())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.tools.On("GetTool", mock.Anything, tool.ToolID()).Return(tool, nil)
	m.artifacts.On("UpsertArtifact", mock.Anything, mock.AnythingOfType("*scanning.Artifact")).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result := &scanning.ExecutionResult{
		Analysis: "One probe failed against a filtered port.",
		SubInvocations: []scanning.SubInvocation{
			{Name: "nmap", ExitCode: 0, Duration: time.Second},
			{Name: "hydra", ExitCode: 2, Stderr: "connection refused", Duration: time.Second},
		},
	}
	m.backend.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	require.NoError(t, ackErr)
	assert.True(t, acked)

	// A failed sub-invocation marks the exit code but the run itself still
	// completed; execution errors are a different path entirely.
	assert.Equal(t, scanning.RunStatusCompleted, run.Status())
	require.NotNil(t, run.ExitCode())
	assert.Equal(t, 1, *run.ExitCode())
}

func TestWorker_SkipsRunCancelledWhileQueued(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	now := time.Now()
	run := scanning.ReconstructRun(
		uuid.New(), user.UserID(), uuid.New(), nil,
		"10.0.0.20", nil, time.Hour,
		scanning.RunStatusCancelled, nil, "",
		now.Add(-time.Minute), time.Time{}, now,
	)

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	require.NoError(t, ackErr)
	assert.True(t, acked, "dropped jobs still advance the queue")
	assert.Equal(t, scanning.RunStatusCancelled, run.Status())
	m.backend.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	m.runs.AssertNotCalled(t, "UpdateRun", mock.Anything, mock.Anything)
}

func TestWorker_DropsJobForDeletedRun(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	run := newPendingRun(user.UserID(), uuid.New())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(nil, scanning.ErrRunNotFound)

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	require.NoError(t, ackErr)
	assert.True(t, acked)
	m.backend.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_NacksOnPickupInfraError(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	run := newPendingRun(user.UserID(), uuid.New())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(nil, errors.New("connection refused"))

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.Error(t, handlerErr)
	assert.True(t, acked)
	require.Error(t, ackErr, "infra failures leave the job for redelivery")
}

func TestWorker_AcksUnknownPayload(t *testing.T) {
	worker, _ := setupWorkerTest()

	var ackErr error
	acked := false
	err := worker.handleJobEvent(context.Background(),
		events.DomainEvent{Type: scanning.EventTypeRunJobQueued, Payload: "garbage"},
		func(e error) {
			acked = true
			ackErr = e
		})

	require.Error(t, err)
	assert.True(t, acked)
	require.NoError(t, ackErr, "poison payloads are acked so the partition keeps moving")
}

func TestWorker_ExecutionFailureFailsRun(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())
	run := newPendingRun(user.UserID(), tool.ToolID())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.tools.On("GetTool", mock.Anything, tool.ToolID()).Return(tool, nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)

	var audited []events.DomainEvent
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.AnythingOfType("events.DomainEvent"), mock.Anything).
		Run(func(args mock.Arguments) {
			audited = append(audited, args.Get(1).(events.DomainEvent))
		}).
		Return(nil)

	m.backend.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("backend execution failed: target unreachable"))

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr, "execution failures are final, not retried")
	require.NoError(t, ackErr)
	assert.True(t, acked)

	assert.Equal(t, scanning.RunStatusFailed, run.Status())
	assert.Contains(t, run.ErrorMessage(), "target unreachable")

	require.Len(t, audited, 2)
	assert.Equal(t, scanning.EventTypeRunFailed, audited[1].Type)
}

func TestWorker_DeadlineExceededMarksTimeout(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())
	run := newPendingRun(user.UserID(), tool.ToolID())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.tools.On("GetTool", mock.Anything, tool.ToolID()).Return(tool, nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	m.backend.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("backend stream interrupted: %w", context.DeadlineExceeded))

	handlerErr, _, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	assert.True(t, acked)
	assert.Equal(t, scanning.RunStatusTimeout, run.Status())
	assert.Contains(t, run.ErrorMessage(), "timed out")
}

func TestWorker_ToolLookupFailureFailsRun(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	run := newPendingRun(user.UserID(), uuid.New())

	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil)
	m.runs.On("UpdateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil)
	m.tools.On("GetTool", mock.Anything, run.ToolID()).Return(nil, catalog.ErrToolNotFound)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	handlerErr, _, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	assert.True(t, acked)
	assert.Equal(t, scanning.RunStatusFailed, run.Status())
	assert.Contains(t, run.ErrorMessage(), "tool lookup failed")
	m.backend.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_CancelledMidExecutionStaysCancelled(t *testing.T) {
	worker, m := setupWorkerTest()
	user := newTestUser(catalog.RoleUser)
	tool := newTestTool("nmap", true, newTestManifest())
	run := newPendingRun(user.UserID(), tool.ToolID())

	now := time.Now()
	cancelled := scanning.ReconstructRun(
		run.RunID(), user.UserID(), tool.ToolID(), nil,
		"10.0.0.20", nil, time.Hour,
		scanning.RunStatusCancelled, nil, "",
		now.Add(-time.Minute), now.Add(-30*time.Second), now,
	)

	// Pickup sees the pending run; by settlement time a stop request has
	// already forced it terminal.
	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(run, nil).Once()
	m.runs.On("GetRun", mock.Anything, run.RunID()).Return(cancelled, nil).Once()
	m.runs.On("UpdateRun", mock.Anything, mock.AnythingOfType("*scanning.Run")).Return(nil).Once()
	m.tools.On("GetTool", mock.Anything, tool.ToolID()).Return(tool, nil)
	m.artifacts.On("UpsertArtifact", mock.Anything, mock.AnythingOfType("*scanning.Artifact")).Return(nil)
	m.broker.On("Publish", mock.Anything, mock.AnythingOfType("scanning.StreamEvent")).Return(nil)

	var audited []events.DomainEvent
	m.publisher.On("PublishDomainEvent", mock.Anything, mock.AnythingOfType("events.DomainEvent"), mock.Anything).
		Run(func(args mock.Arguments) {
			audited = append(audited, args.Get(1).(events.DomainEvent))
		}).
		Return(nil)

	m.backend.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(&scanning.ExecutionResult{Analysis: "partial"}, nil)

	handlerErr, ackErr, acked := dispatchJob(worker, run)

	require.NoError(t, handlerErr)
	require.NoError(t, ackErr)
	assert.True(t, acked)

	assert.Equal(t, scanning.RunStatusCancelled, cancelled.Status())
	for _, evt := range audited {
		assert.NotEqual(t, scanning.EventTypeRunCompleted, evt.Type,
			"a run settled by a stop request must not be resurrected as completed")
	}
	m.runs.AssertExpectations(t)
}
