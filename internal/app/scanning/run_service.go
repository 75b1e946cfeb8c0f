// Package scanning provides the application services that drive scan runs:
// submission, lifecycle mutation, detail queries, and the single worker that
// executes queued jobs against the AI backend.
package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning/dtos"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

// ErrRunAccessDenied is returned when a caller operates on a run they do not
// own without holding an elevated role.
var ErrRunAccessDenied = errors.New("caller does not own this run")

const (
	// defaultRunTimeout bounds executions whose tool manifest carries no
	// default and whose caller supplied none.
	defaultRunTimeout = 30 * time.Minute

	// backendResetTimeout bounds the fire-and-forget backend reset issued
	// after a run is stopped.
	backendResetTimeout = 5 * time.Second

	// maxListLimit caps page sizes on run listings.
	maxListLimit = 100

	// defaultListLimit is the page size when the caller supplies none.
	defaultListLimit = 20
)

// CreateRunCommand carries everything needed to submit a new run. Tool
// references the catalog by ID or slug; ScopeID is optional and absent means
// no authorization boundary applies.
type CreateRunCommand struct {
	User    *catalog.User
	Tool    string
	ScopeID *uuid.UUID
	Target  string
	Params  json.RawMessage
	Timeout time.Duration
}

// RunDetail bundles a run together with its artifacts and findings for
// detail queries.
type RunDetail struct {
	Run       *domain.Run
	Artifacts []*domain.Artifact
	Findings  []*findings.Finding
}

// RunService coordinates the full lifecycle of scan runs: catalog resolution
// and scope authorization on submission, durable job enqueueing, detail
// queries, and the guarded stop/delete mutations.
type RunService struct {
	runs      domain.RunRepository
	artifacts domain.ArtifactRepository
	findings  findings.FindingRepository
	tools     catalog.ToolRepository

	authorizer *TargetAuthorizer
	queue      domain.RunJobQueue
	broker     domain.StreamBroker
	backend    domain.ExecutionBackend
	publisher  events.DomainEventPublisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRunService creates a RunService wired to the given stores, queue,
// stream broker, and execution backend.
func NewRunService(
	runs domain.RunRepository,
	artifacts domain.ArtifactRepository,
	findingStore findings.FindingRepository,
	tools catalog.ToolRepository,
	authorizer *TargetAuthorizer,
	queue domain.RunJobQueue,
	broker domain.StreamBroker,
	backend domain.ExecutionBackend,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
) *RunService {
	logger = logger.With("component", "run_service")
	return &RunService{
		runs:       runs,
		artifacts:  artifacts,
		findings:   findingStore,
		tools:      tools,
		authorizer: authorizer,
		queue:      queue,
		broker:     broker,
		backend:    backend,
		publisher:  publisher,
		logger:     logger,
		tracer:     tracer,
	}
}

// CreateRun validates a submission against the catalog and the caller's
// scope, persists the run in PENDING, and enqueues its job. The run's stream
// channel is seeded with an init event so subscribers attaching before the
// worker picks the job up still see activity.
func (s *RunService) CreateRun(ctx context.Context, cmd CreateRunCommand) (*domain.Run, error) {
	logger := s.logger.With("operation", "create_run", "user_id", cmd.User.UserID(), "tool", cmd.Tool)
	ctx, span := s.tracer.Start(ctx, "run_service.create_run",
		trace.WithAttributes(
			attribute.String("user_id", cmd.User.UserID().String()),
			attribute.String("tool", cmd.Tool),
			attribute.String("target", cmd.Target),
		))
	defer span.End()

	tool, err := s.resolveTool(ctx, cmd.Tool)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve tool")
		return nil, err
	}
	span.SetAttributes(attribute.String("tool_id", tool.ToolID().String()))

	if !tool.Enabled() {
		span.AddEvent("tool_disabled")
		span.SetStatus(codes.Error, "tool disabled")
		return nil, fmt.Errorf("tool %s: %w", tool.Slug(), catalog.ErrToolDisabled)
	}

	manifest := tool.Manifest()
	if manifest == nil {
		span.AddEvent("tool_missing_manifest")
		span.SetStatus(codes.Error, "tool missing manifest")
		return nil, fmt.Errorf("tool %s: %w", tool.Slug(), catalog.ErrToolMissingManifest)
	}

	target := strings.TrimSpace(cmd.Target)
	if err := s.authorizer.Authorize(ctx, cmd.User, cmd.ScopeID, target); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "target not authorized")
		return nil, err
	}
	span.AddEvent("target_authorized")

	params := cmd.Params
	if len(params) == 0 {
		params = manifest.DefaultParams
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = manifest.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}

	run := domain.NewRun(cmd.User.UserID(), tool.ToolID(), cmd.ScopeID, target, params, timeout)
	if err := s.runs.CreateRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create run")
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	span.AddEvent("run_persisted", trace.WithAttributes(
		attribute.String("run_id", run.RunID().String()),
	))

	job := domain.NewRunJobQueuedEvent(run.RunID(), run.Target(), cmd.User.UserID())
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The run record exists but its job never will; fail it so the
		// caller is not left watching a PENDING run that cannot start.
		if failErr := run.Fail("failed to enqueue run job"); failErr == nil {
			if updErr := s.runs.UpdateRun(ctx, run); updErr != nil {
				logger.Error(ctx, "Failed to persist run failure after enqueue error", "error", updErr)
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue run job")
		return nil, fmt.Errorf("failed to enqueue run job (run_id: %s): %w", run.RunID(), err)
	}
	span.AddEvent("job_enqueued")

	publishStream(ctx, s.broker, logger, run.RunID(), domain.StreamEventTypeInit, dtos.StreamInit{
		Status: run.Status().String(),
		Tool:   tool.Slug(),
		Target: run.Target(),
	})

	logger.Info(ctx, "Run created", "run_id", run.RunID(), "target", run.Target())
	span.SetStatus(codes.Ok, "run created")

	return run, nil
}

// GetRun loads a run with its artifacts and findings. Callers may only read
// runs they own unless they hold an elevated role.
func (s *RunService) GetRun(ctx context.Context, user *catalog.User, runID uuid.UUID) (*RunDetail, error) {
	ctx, span := s.tracer.Start(ctx, "run_service.get_run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.String("user_id", user.UserID().String()),
		))
	defer span.End()

	run, err := s.loadOwnedRun(ctx, user, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load run")
		return nil, err
	}

	detail := &RunDetail{Run: run}

	// Artifacts and findings are independent; fetch them concurrently.
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		artifacts, err := s.artifacts.ListArtifactsByRun(gCtx, runID)
		if err != nil {
			return fmt.Errorf("failed to list artifacts (run_id: %s): %w", runID, err)
		}
		detail.Artifacts = artifacts
		return nil
	})
	g.Go(func() error {
		runFindings, err := s.findings.ListFindingsByRun(gCtx, runID)
		if err != nil {
			return fmt.Errorf("failed to list findings (run_id: %s): %w", runID, err)
		}
		detail.Findings = runFindings
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load run detail")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("artifact_count", len(detail.Artifacts)),
		attribute.Int("finding_count", len(detail.Findings)),
	)
	span.SetStatus(codes.Ok, "run detail loaded")

	return detail, nil
}

// ListRuns pages through the caller's own runs, newest first.
func (s *RunService) ListRuns(ctx context.Context, user *catalog.User, limit, offset int) ([]*domain.Run, error) {
	ctx, span := s.tracer.Start(ctx, "run_service.list_runs",
		trace.WithAttributes(
			attribute.String("user_id", user.UserID().String()),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		))
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.runs.ListRunsByUser(ctx, user.UserID(), limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list runs")
		return nil, fmt.Errorf("failed to list runs (user_id: %s): %w", user.UserID(), err)
	}

	span.SetAttributes(attribute.Int("run_count", len(runs)))
	span.SetStatus(codes.Ok, "runs listed")

	return runs, nil
}

// GetRunStatus returns only the run's persisted status. The stream transport
// polls this as its liveness fallback, so it deliberately skips artifacts
// and findings.
func (s *RunService) GetRunStatus(ctx context.Context, user *catalog.User, runID uuid.UUID) (domain.RunStatus, error) {
	run, err := s.loadOwnedRun(ctx, user, runID)
	if err != nil {
		return "", err
	}
	return run.Status(), nil
}

// StopRun cancels a queued or in-flight run. Stopping an already-terminal
// run returns a RunInvalidStateError and mutates nothing; the guard error is
// deliberate so callers learn the run already finished.
func (s *RunService) StopRun(ctx context.Context, user *catalog.User, runID uuid.UUID) (*domain.Run, error) {
	logger := s.logger.With("operation", "stop_run", "run_id", runID)
	ctx, span := s.tracer.Start(ctx, "run_service.stop_run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.String("user_id", user.UserID().String()),
		))
	defer span.End()

	run, err := s.loadOwnedRun(ctx, user, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load run")
		return nil, err
	}

	if err := s.cancelRun(ctx, logger, run, user.UserID()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to cancel run")
		return nil, err
	}

	logger.Info(ctx, "Run stopped", "user_id", user.UserID())
	span.AddEvent("run_cancelled")
	span.SetStatus(codes.Ok, "run stopped")

	return run, nil
}

// DeleteRun stops an active run and removes it along with every dependent
// artifact and finding in one transaction. Deleting an already-terminal run
// returns the same guard error as StopRun and mutates nothing.
func (s *RunService) DeleteRun(ctx context.Context, user *catalog.User, runID uuid.UUID) error {
	logger := s.logger.With("operation", "delete_run", "run_id", runID)
	ctx, span := s.tracer.Start(ctx, "run_service.delete_run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.String("user_id", user.UserID().String()),
		))
	defer span.End()

	run, err := s.loadOwnedRun(ctx, user, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load run")
		return err
	}

	if err := s.cancelRun(ctx, logger, run, user.UserID()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to cancel run")
		return err
	}
	span.AddEvent("run_cancelled")

	if err := s.runs.DeleteRun(ctx, runID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete run")
		return fmt.Errorf("failed to delete run (run_id: %s): %w", runID, err)
	}

	logger.Info(ctx, "Run deleted", "user_id", user.UserID())
	span.AddEvent("run_deleted")
	span.SetStatus(codes.Ok, "run deleted")

	return nil
}

// resolveTool looks a tool up by catalog ID when the reference parses as a
// UUID, by slug otherwise.
func (s *RunService) resolveTool(ctx context.Context, ref string) (*catalog.Tool, error) {
	if toolID, err := uuid.Parse(ref); err == nil {
		tool, err := s.tools.GetTool(ctx, toolID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool (tool_id: %s): %w", toolID, err)
		}
		return tool, nil
	}

	tool, err := s.tools.GetToolBySlug(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool (slug: %s): %w", ref, err)
	}
	return tool, nil
}

// loadOwnedRun fetches a run and enforces ownership: the caller must own the
// run or hold an elevated role.
func (s *RunService) loadOwnedRun(ctx context.Context, user *catalog.User, runID uuid.UUID) (*domain.Run, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run (run_id: %s): %w", runID, err)
	}

	if run.UserID() != user.UserID() && !user.Role().Elevated() {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunAccessDenied)
	}

	return run, nil
}

// cancelRun transitions a run to CANCELLED, persists it, emits the cancel
// events, and kicks off the asynchronous backend reset. The domain guard
// rejects already-terminal runs before anything is written.
func (s *RunService) cancelRun(ctx context.Context, logger *logger.Logger, run *domain.Run, requestedBy uuid.UUID) error {
	if err := run.Cancel(); err != nil {
		return err
	}

	if err := s.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run (run_id: %s): %w", run.RunID(), err)
	}

	publishAudit(ctx, s.publisher, logger, run.RunID().String(),
		domain.NewRunCancelledEvent(run.RunID(), requestedBy))

	publishStream(ctx, s.broker, logger, run.RunID(), domain.StreamEventTypeFailed, dtos.StreamStatus{
		Status: run.Status().String(),
	})

	// The backend multiplexes a single stateful session; reset it so the
	// next run starts clean. The reset must survive the caller's context.
	go s.resetBackend(context.WithoutCancel(ctx))

	return nil
}

// resetBackend issues a bounded reset against the shared execution backend.
// Failures are logged and swallowed; housekeeping never blocks lifecycle
// transitions.
func (s *RunService) resetBackend(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, backendResetTimeout)
	defer cancel()

	if err := s.backend.Reset(ctx); err != nil {
		s.logger.Error(ctx, "Failed to reset execution backend", "error", err)
	}
}
