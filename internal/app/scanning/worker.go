package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning/dtos"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

// invocationRecord is the wire shape of one sub-invocation inside the
// tool_metadata artifact.
type invocationRecord struct {
	Name       string          `json:"name"`
	Params     json.RawMessage `json:"params,omitempty"`
	ExitCode   int             `json:"exit_code"`
	DurationMS int64           `json:"duration_ms"`
}

// ScanWorker drains the run job queue and drives executions against the AI
// backend. Exactly one worker runs per deployment: the backend multiplexes a
// single stateful session, so concurrent executions would interleave it.
//
// Jobs are never retried. An execution acts on remote targets; repeating a
// side-effecting scan after a failure risks compounding whatever went wrong.
type ScanWorker struct {
	runs      domain.RunRepository
	artifacts domain.ArtifactRepository
	tools     catalog.ToolRepository

	backend   domain.ExecutionBackend
	broker    domain.StreamBroker
	bus       events.EventBus
	publisher events.DomainEventPublisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScanWorker creates a ScanWorker consuming from the given event bus.
func NewScanWorker(
	runs domain.RunRepository,
	artifacts domain.ArtifactRepository,
	tools catalog.ToolRepository,
	backend domain.ExecutionBackend,
	broker domain.StreamBroker,
	bus events.EventBus,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
) *ScanWorker {
	logger = logger.With("component", "scan_worker")
	return &ScanWorker{
		runs:      runs,
		artifacts: artifacts,
		tools:     tools,
		backend:   backend,
		broker:    broker,
		bus:       bus,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
	}
}

// Start subscribes the worker to the run job queue. It returns once the
// subscription is established; consumption continues until ctx is cancelled.
func (w *ScanWorker) Start(ctx context.Context) error {
	w.logger.Info(ctx, "Scan worker starting")
	return w.bus.Subscribe(ctx, []events.EventType{domain.EventTypeRunJobQueued}, w.handleJobEvent)
}

// handleJobEvent unwraps one queued job and processes it. Only
// infrastructure failures leave the job unacknowledged for redelivery;
// execution failures settle the run in a terminal status and are final.
func (w *ScanWorker) handleJobEvent(ctx context.Context, evt events.DomainEvent, ack events.AckFunc) error {
	job, ok := evt.Payload.(domain.RunJobQueuedEvent)
	if !ok {
		ack(nil)
		return fmt.Errorf("expected RunJobQueuedEvent payload, got %T", evt.Payload)
	}

	if err := w.processJob(ctx, job); err != nil {
		ack(err)
		return err
	}

	ack(nil)
	return nil
}

func (w *ScanWorker) processJob(ctx context.Context, job domain.RunJobQueuedEvent) error {
	logger := w.logger.With("operation", "process_job", "run_id", job.RunID)
	ctx, span := w.tracer.Start(ctx, "scan_worker.process_job",
		trace.WithAttributes(
			attribute.String("run_id", job.RunID.String()),
			attribute.String("target", job.Target),
		))
	defer span.End()

	run, err := w.runs.GetRun(ctx, job.RunID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			logger.Info(ctx, "Run no longer exists; dropping job")
			span.AddEvent("run_missing")
			span.SetStatus(codes.Ok, "job dropped")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get run")
		return fmt.Errorf("failed to get run (run_id: %s): %w", job.RunID, err)
	}

	// PENDING to RUNNING doubles as the claim: a run cancelled while it sat
	// in the queue is no longer PENDING and its job is dropped here.
	if err := run.Start(); err != nil {
		logger.Info(ctx, "Run no longer pending; dropping job", "status", run.Status())
		span.AddEvent("run_not_pending", trace.WithAttributes(
			attribute.String("status", run.Status().String()),
		))
		span.SetStatus(codes.Ok, "job dropped")
		return nil
	}
	if err := w.runs.UpdateRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark run running")
		return fmt.Errorf("failed to update run (run_id: %s): %w", run.RunID(), err)
	}
	span.AddEvent("run_started")

	publishAudit(ctx, w.publisher, logger, run.RunID().String(),
		domain.NewRunStartedEvent(run.RunID(), run.Target()))

	w.execute(ctx, logger, run)
	span.SetStatus(codes.Ok, "job processed")

	return nil
}

// execute drives one run against the backend and settles it into a terminal
// status. All failures from here on are final; nothing is retried.
func (w *ScanWorker) execute(ctx context.Context, logger *logger.Logger, run *domain.Run) {
	runID := run.RunID()

	tool, err := w.tools.GetTool(ctx, run.ToolID())
	if err != nil {
		w.finishFailed(ctx, logger, runID, fmt.Sprintf("tool lookup failed: %v", err))
		return
	}

	acc := newOutputAccumulator(func(chunk, total []byte) {
		w.flushStdout(ctx, logger, runID, chunk, total)
	})

	hooks := domain.ExecutionHooks{
		OnOutput: acc.Write,
		OnToolStart: func(name string, params json.RawMessage) {
			publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeToolStart,
				dtos.StreamToolStart{Name: name, Params: params})
		},
		OnToolComplete: func(name string, exitCode int, duration time.Duration) {
			publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeToolComplete,
				dtos.StreamToolComplete{Name: name, ExitCode: exitCode, DurationMS: duration.Milliseconds()})
		},
		OnProgress: func(message string) {
			publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeProgress,
				dtos.StreamProgress{Message: message})
		},
	}

	req := domain.ExecutionRequest{
		RunID:   runID,
		Task:    tool.Slug(),
		Target:  run.Target(),
		Params:  run.Params(),
		Timeout: run.Timeout(),
	}

	result, execErr := w.backend.Execute(ctx, req, hooks)

	// Emit whatever output is still buffered before settling the run.
	acc.Close()

	switch {
	case execErr == nil:
		w.finishCompleted(ctx, logger, runID, acc.Bytes(), result)
	case errors.Is(execErr, context.DeadlineExceeded):
		w.finishTimedOut(ctx, logger, runID, fmt.Sprintf("execution timed out after %s", run.Timeout()))
	default:
		w.finishFailed(ctx, logger, runID, execErr.Error())
	}
}

// flushStdout is the accumulator sink: it refreshes the stdout artifact with
// the full output so far and streams the new chunk to subscribers.
func (w *ScanWorker) flushStdout(ctx context.Context, logger *logger.Logger, runID uuid.UUID, chunk, total []byte) {
	artifact := domain.NewArtifact(runID, domain.ArtifactKindStdout.String(), domain.ArtifactKindStdout, total)
	if err := w.artifacts.UpsertArtifact(ctx, artifact); err != nil {
		logger.Error(ctx, "Failed to persist stdout artifact", "error", err)
	}

	publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeOutput,
		dtos.StreamOutput{Chunk: string(chunk)})
}

func (w *ScanWorker) finishCompleted(
	ctx context.Context,
	logger *logger.Logger,
	runID uuid.UUID,
	stdout []byte,
	result *domain.ExecutionResult,
) {
	w.persistArtifacts(ctx, logger, runID, stdout, result)

	exitCode := result.ExitCode()
	run := w.settleRun(ctx, logger, runID, func(r *domain.Run) error {
		return r.Complete(exitCode)
	})
	if run == nil {
		return
	}

	publishAudit(ctx, w.publisher, logger, runID.String(), domain.NewRunCompletedEvent(runID, exitCode))
	publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeCompleted, dtos.StreamStatus{
		Status:   run.Status().String(),
		ExitCode: &exitCode,
	})

	logger.Info(ctx, "Run completed",
		"exit_code", exitCode,
		"invocations", len(result.SubInvocations),
		"tokens_used", result.TokensUsed,
	)
}

func (w *ScanWorker) finishFailed(ctx context.Context, logger *logger.Logger, runID uuid.UUID, reason string) {
	run := w.settleRun(ctx, logger, runID, func(r *domain.Run) error {
		return r.Fail(reason)
	})
	if run == nil {
		return
	}

	publishAudit(ctx, w.publisher, logger, runID.String(), domain.NewRunFailedEvent(runID, reason))
	publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeFailed, dtos.StreamStatus{
		Status: run.Status().String(),
		Error:  reason,
	})

	logger.Warn(ctx, "Run failed", "reason", reason)
}

func (w *ScanWorker) finishTimedOut(ctx context.Context, logger *logger.Logger, runID uuid.UUID, reason string) {
	run := w.settleRun(ctx, logger, runID, func(r *domain.Run) error {
		return r.MarkTimeout(reason)
	})
	if run == nil {
		return
	}

	publishAudit(ctx, w.publisher, logger, runID.String(), domain.NewRunTimedOutEvent(runID, reason))
	publishStream(ctx, w.broker, logger, runID, domain.StreamEventTypeFailed, dtos.StreamStatus{
		Status: run.Status().String(),
		Error:  reason,
	})

	logger.Warn(ctx, "Run timed out", "reason", reason)
}

// settleRun reloads the run and applies a terminal transition. The reload
// keeps a run that was cancelled or deleted mid-execution terminal: the
// transition is skipped and nil is returned so no duplicate events fire.
func (w *ScanWorker) settleRun(
	ctx context.Context,
	logger *logger.Logger,
	runID uuid.UUID,
	transition func(run *domain.Run) error,
) *domain.Run {
	run, err := w.runs.GetRun(ctx, runID)
	if err != nil {
		logger.Error(ctx, "Failed to reload run for settlement", "error", err)
		return nil
	}

	if run.Status().IsTerminal() {
		logger.Info(ctx, "Run already terminal; leaving as-is", "status", run.Status())
		return nil
	}

	if err := transition(run); err != nil {
		logger.Error(ctx, "Failed to transition run", "error", err)
		return nil
	}

	if err := w.runs.UpdateRun(ctx, run); err != nil {
		logger.Error(ctx, "Failed to persist terminal run", "error", err)
		return nil
	}

	return run
}

// persistArtifacts writes the four output artifacts of a finished execution.
// Individual write failures are logged and skipped; one bad artifact must
// not cost the run its remaining output.
func (w *ScanWorker) persistArtifacts(
	ctx context.Context,
	logger *logger.Logger,
	runID uuid.UUID,
	stdout []byte,
	result *domain.ExecutionResult,
) {
	artifacts := []*domain.Artifact{
		domain.NewArtifact(runID, domain.ArtifactKindStdout.String(), domain.ArtifactKindStdout, stdout),
		domain.NewArtifact(runID, domain.ArtifactKindStderr.String(), domain.ArtifactKindStderr, []byte(result.CombinedStderr())),
		domain.NewArtifact(runID, domain.ArtifactKindAnalysis.String(), domain.ArtifactKindAnalysis, []byte(result.Analysis)),
	}

	if metadata, err := json.Marshal(invocationRecords(result.SubInvocations)); err != nil {
		logger.Error(ctx, "Failed to marshal tool metadata", "error", err)
	} else {
		artifacts = append(artifacts,
			domain.NewArtifact(runID, domain.ArtifactKindToolMetadata.String(), domain.ArtifactKindToolMetadata, metadata))
	}

	for _, artifact := range artifacts {
		if err := w.artifacts.UpsertArtifact(ctx, artifact); err != nil {
			logger.Error(ctx, "Failed to persist artifact", "artifact", artifact.Name(), "error", err)
		}
	}
}

func invocationRecords(subs []domain.SubInvocation) []invocationRecord {
	records := make([]invocationRecord, 0, len(subs))
	for _, sub := range subs {
		records = append(records, invocationRecord{
			Name:       sub.Name,
			Params:     sub.Params,
			ExitCode:   sub.ExitCode,
			DurationMS: sub.Duration.Milliseconds(),
		})
	}
	return records
}
