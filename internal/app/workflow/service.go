package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning/dtos"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

// ErrSessionAccessDenied is returned when a caller operates on a session they
// do not own without holding an elevated role.
var ErrSessionAccessDenied = errors.New("caller does not own this session")

// ErrInvalidObjective is returned when a submission names an objective outside
// the supported set.
var ErrInvalidObjective = errors.New("invalid workflow objective")

// DriverToolSlug is the reserved catalog slug of the tool every workflow's
// bound run references. It is seeded from the tool manifest at startup.
const DriverToolSlug = "workflow"

const (
	// defaultMaxSteps applies when a submission omits max_steps.
	defaultMaxSteps = 20

	// minMaxSteps and maxMaxSteps clamp submitted step budgets.
	minMaxSteps = 1
	maxMaxSteps = 50

	// sessionResetTimeout bounds the fire-and-forget backend reset issued
	// after a running session is cancelled.
	sessionResetTimeout = 5 * time.Second

	// maxSessionListLimit caps page sizes on session listings.
	maxSessionListLimit = 100

	// defaultSessionListLimit is the page size when the caller supplies none.
	defaultSessionListLimit = 20
)

// CreateWorkflowCommand carries everything needed to submit a new workflow
// session. Objective is mandatory; Name and MaxSteps take defaults.
type CreateWorkflowCommand struct {
	User      *catalog.User
	Name      string
	Target    string
	Objective string
	MaxSteps  int
}

// WorkflowSubmission is the result of a workflow submission: the persisted
// session and, when admission deferred it, the 1-based queue position.
type WorkflowSubmission struct {
	Session *domain.Session

	// QueuePosition is zero when the session was admitted immediately.
	QueuePosition int
}

// WorkflowDetail bundles a session with its findings and, while the session
// waits for admission, its queue position.
type WorkflowDetail struct {
	Session       *domain.Session
	Findings      []*findings.Finding
	QueuePosition int
}

// SessionService handles workflow submissions and the caller-facing session
// operations: detail queries, listing, cancellation, and deletion. Phase
// execution itself belongs to the Orchestrator; the service only hands
// admitted sessions over.
type SessionService struct {
	sessions domain.SessionRepository
	runs     scanning.RunRepository
	findings findings.FindingRepository
	tools    catalog.ToolRepository

	orchestrator *Orchestrator
	broker       scanning.StreamBroker
	backend      scanning.ExecutionBackend
	publisher    events.DomainEventPublisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSessionService creates a SessionService wired to the given stores,
// orchestrator, stream broker, and execution backend.
func NewSessionService(
	sessions domain.SessionRepository,
	runs scanning.RunRepository,
	findingStore findings.FindingRepository,
	tools catalog.ToolRepository,
	orchestrator *Orchestrator,
	broker scanning.StreamBroker,
	backend scanning.ExecutionBackend,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
) *SessionService {
	logger = logger.With("component", "session_service")
	return &SessionService{
		sessions:     sessions,
		runs:         runs,
		findings:     findingStore,
		tools:        tools,
		orchestrator: orchestrator,
		broker:       broker,
		backend:      backend,
		publisher:    publisher,
		logger:       logger,
		tracer:       tracer,
	}
}

// CreateWorkflow validates a submission, persists the session with its six
// steps and a bound run, and attempts immediate admission. A held execution
// slot leaves the session CREATED and reports its queue position instead.
func (s *SessionService) CreateWorkflow(ctx context.Context, cmd CreateWorkflowCommand) (*WorkflowSubmission, error) {
	logger := s.logger.With("operation", "create_workflow", "user_id", cmd.User.UserID(), "target", cmd.Target)
	ctx, span := s.tracer.Start(ctx, "session_service.create_workflow",
		trace.WithAttributes(
			attribute.String("user_id", cmd.User.UserID().String()),
			attribute.String("target", cmd.Target),
			attribute.String("objective", cmd.Objective),
		))
	defer span.End()

	objective := domain.ParseObjective(strings.TrimSpace(cmd.Objective))
	if !objective.Valid() {
		span.AddEvent("invalid_objective")
		span.SetStatus(codes.Error, "invalid objective")
		return nil, fmt.Errorf("objective %q: %w", cmd.Objective, ErrInvalidObjective)
	}

	target := strings.TrimSpace(cmd.Target)
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = fmt.Sprintf("Assessment of %s", target)
	}
	maxSteps := cmd.MaxSteps
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}
	if maxSteps < minMaxSteps {
		maxSteps = minMaxSteps
	}
	if maxSteps > maxMaxSteps {
		maxSteps = maxMaxSteps
	}

	tool, err := s.tools.GetToolBySlug(ctx, DriverToolSlug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow driver tool unavailable")
		return nil, fmt.Errorf("failed to resolve workflow driver tool (slug: %s): %w", DriverToolSlug, err)
	}

	// Every session carries a bound run so phase output rides the same
	// stream and artifact machinery as plain scan runs.
	run := scanning.NewRun(cmd.User.UserID(), tool.ToolID(), nil, target, nil, s.orchestrator.SessionTimeout())
	if err := s.runs.CreateRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create bound run")
		return nil, fmt.Errorf("failed to create bound run: %w", err)
	}

	session := domain.NewSession(cmd.User.UserID(), run.RunID(), name, target, objective, maxSteps)
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		// The bound run would otherwise dangle without a session.
		if delErr := s.runs.DeleteRun(ctx, run.RunID()); delErr != nil {
			logger.Error(ctx, "Failed to remove bound run after session create error",
				"run_id", run.RunID(), "error", delErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	span.AddEvent("session_persisted", trace.WithAttributes(
		attribute.String("session_id", session.SessionID().String()),
	))

	publishStream(ctx, s.broker, logger, run.RunID(), scanning.StreamEventTypeInit, dtos.StreamInit{
		Status: run.Status().String(),
		Tool:   tool.Slug(),
		Target: target,
	})

	started, admitErr := s.orchestrator.TryAdmit(ctx, session.SessionID())
	if admitErr != nil {
		// The session is durable; the drain will pick it up even if this
		// admission attempt failed.
		logger.Error(ctx, "Admission attempt failed; session remains queued",
			"session_id", session.SessionID(), "error", admitErr)
	}

	if started {
		if fresh, err := s.sessions.GetSession(ctx, session.SessionID()); err == nil {
			session = fresh
		} else {
			logger.Error(ctx, "Failed to reload admitted session", "error", err)
		}

		logger.Info(ctx, "Workflow session started", "session_id", session.SessionID())
		span.AddEvent("session_admitted")
		span.SetStatus(codes.Ok, "workflow started")
		return &WorkflowSubmission{Session: session}, nil
	}

	position, err := s.sessions.QueuePosition(ctx, session.SessionID())
	if err != nil {
		logger.Error(ctx, "Failed to compute queue position", "session_id", session.SessionID(), "error", err)
		position = 0
	} else {
		publishAudit(ctx, s.publisher, logger, session.SessionID().String(),
			domain.NewSessionQueuedEvent(session.SessionID(), position))
	}

	logger.Info(ctx, "Workflow session queued",
		"session_id", session.SessionID(), "queue_position", position)
	span.AddEvent("session_queued", trace.WithAttributes(attribute.Int("queue_position", position)))
	span.SetStatus(codes.Ok, "workflow queued")

	return &WorkflowSubmission{Session: session, QueuePosition: position}, nil
}

// GetWorkflow loads a session with its findings. Sessions still waiting for
// admission also report their queue position.
func (s *SessionService) GetWorkflow(ctx context.Context, user *catalog.User, sessionID uuid.UUID) (*WorkflowDetail, error) {
	ctx, span := s.tracer.Start(ctx, "session_service.get_workflow",
		trace.WithAttributes(
			attribute.String("session_id", sessionID.String()),
			attribute.String("user_id", user.UserID().String()),
		))
	defer span.End()

	session, err := s.loadOwnedSession(ctx, user, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load session")
		return nil, err
	}

	sessionFindings, err := s.findings.ListFindingsBySession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list findings")
		return nil, fmt.Errorf("failed to list findings (session_id: %s): %w", sessionID, err)
	}

	detail := &WorkflowDetail{Session: session, Findings: sessionFindings}

	if session.Status() == domain.SessionStatusCreated {
		position, err := s.sessions.QueuePosition(ctx, sessionID)
		if err != nil {
			s.logger.Error(ctx, "Failed to compute queue position", "session_id", sessionID, "error", err)
		} else {
			detail.QueuePosition = position
		}
	}

	span.SetAttributes(attribute.Int("finding_count", len(detail.Findings)))
	span.SetStatus(codes.Ok, "workflow detail loaded")

	return detail, nil
}

// ListWorkflows pages through the caller's own sessions, newest first.
func (s *SessionService) ListWorkflows(ctx context.Context, user *catalog.User, limit, offset int) ([]*domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "session_service.list_workflows",
		trace.WithAttributes(
			attribute.String("user_id", user.UserID().String()),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		))
	defer span.End()

	if limit <= 0 {
		limit = defaultSessionListLimit
	}
	if limit > maxSessionListLimit {
		limit = maxSessionListLimit
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessions.ListSessionsByUser(ctx, user.UserID(), limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sessions")
		return nil, fmt.Errorf("failed to list sessions (user_id: %s): %w", user.UserID(), err)
	}

	span.SetAttributes(attribute.Int("session_count", len(sessions)))
	span.SetStatus(codes.Ok, "sessions listed")

	return sessions, nil
}

// CancelWorkflow cancels a queued or running session: every unfinished step
// goes SKIPPED, the session and its bound run go CANCELLED, and terminal
// events land on both channels. Cancelling an already-terminal session
// returns a SessionInvalidStateError and mutates nothing.
func (s *SessionService) CancelWorkflow(ctx context.Context, user *catalog.User, sessionID uuid.UUID) (*domain.Session, error) {
	logger := s.logger.With("operation", "cancel_workflow", "session_id", sessionID)
	ctx, span := s.tracer.Start(ctx, "session_service.cancel_workflow",
		trace.WithAttributes(
			attribute.String("session_id", sessionID.String()),
			attribute.String("user_id", user.UserID().String()),
		))
	defer span.End()

	session, err := s.loadOwnedSession(ctx, user, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load session")
		return nil, err
	}

	if err := s.cancelSession(ctx, logger, session, user.UserID()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to cancel session")
		return nil, err
	}

	logger.Info(ctx, "Workflow session cancelled", "user_id", user.UserID())
	span.AddEvent("session_cancelled")
	span.SetStatus(codes.Ok, "workflow cancelled")

	return session, nil
}

// DeleteWorkflow removes a session and everything hanging off it: findings,
// steps, the session row, and the bound run with its artifacts and findings,
// in one transaction. An active session is cancelled first so the driver
// halts at its next phase boundary.
func (s *SessionService) DeleteWorkflow(ctx context.Context, user *catalog.User, sessionID uuid.UUID) error {
	logger := s.logger.With("operation", "delete_workflow", "session_id", sessionID)
	ctx, span := s.tracer.Start(ctx, "session_service.delete_workflow",
		trace.WithAttributes(
			attribute.String("session_id", sessionID.String()),
			attribute.String("user_id", user.UserID().String()),
		))
	defer span.End()

	session, err := s.loadOwnedSession(ctx, user, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load session")
		return err
	}

	if !session.Status().IsTerminal() {
		var invalidState domain.SessionInvalidStateError
		if err := s.cancelSession(ctx, logger, session, user.UserID()); err != nil && !errors.As(err, &invalidState) {
			// A concurrent settlement winning the race is fine; anything
			// else aborts the delete.
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to cancel session")
			return err
		}
		span.AddEvent("session_cancelled")
	}

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete session")
		return fmt.Errorf("failed to delete session (session_id: %s): %w", sessionID, err)
	}

	logger.Info(ctx, "Workflow session deleted", "user_id", user.UserID())
	span.AddEvent("session_deleted")
	span.SetStatus(codes.Ok, "workflow deleted")

	return nil
}

// loadOwnedSession fetches a session and enforces ownership: the caller must
// own the session or hold an elevated role.
func (s *SessionService) loadOwnedSession(ctx context.Context, user *catalog.User, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session (session_id: %s): %w", sessionID, err)
	}

	if session.UserID() != user.UserID() && !user.Role().Elevated() {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionAccessDenied)
	}

	return session, nil
}

// cancelSession performs the cancellation sweep: steps first so a retry after
// a partial failure still finds the session active, then the session row, the
// bound run, the audit event, and the backend reset when the session was
// actually executing.
func (s *SessionService) cancelSession(ctx context.Context, logger *logger.Logger, session *domain.Session, requestedBy uuid.UUID) error {
	wasRunning := session.Status() == domain.SessionStatusRunning

	if err := session.Cancel(); err != nil {
		return err
	}

	for _, step := range session.Steps() {
		if step.Status() != domain.StepStatusSkipped {
			continue
		}
		if err := s.sessions.UpdateStep(ctx, step); err != nil {
			return fmt.Errorf("failed to persist skipped step (phase: %d): %w", step.Phase().Ordinal(), err)
		}
	}

	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update session (session_id: %s): %w", session.SessionID(), err)
	}

	s.cancelBoundRun(ctx, logger, session, requestedBy)

	publishAudit(ctx, s.publisher, logger, session.SessionID().String(),
		domain.NewSessionCancelledEvent(session.SessionID(), requestedBy))

	if wasRunning {
		// The backend may still be mid-phase; reset it so the next session
		// starts clean. The reset must survive the caller's context.
		go s.resetBackend(context.WithoutCancel(ctx))
	}

	return nil
}

// cancelBoundRun mirrors the session cancellation onto the bound run. A run
// already settled by the driver is left alone; failures are logged because
// the session cancellation itself already committed.
func (s *SessionService) cancelBoundRun(ctx context.Context, logger *logger.Logger, session *domain.Session, requestedBy uuid.UUID) {
	run, err := s.runs.GetRun(ctx, session.RunID())
	if err != nil {
		logger.Error(ctx, "Failed to load bound run for cancellation", "run_id", session.RunID(), "error", err)
		return
	}
	if run.Status().IsTerminal() {
		return
	}

	if err := run.Cancel(); err != nil {
		logger.Warn(ctx, "Bound run settled concurrently", "run_id", run.RunID(), "error", err)
		return
	}
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		logger.Error(ctx, "Failed to persist bound run cancellation", "run_id", run.RunID(), "error", err)
		return
	}

	publishAudit(ctx, s.publisher, logger, run.RunID().String(),
		scanning.NewRunCancelledEvent(run.RunID(), requestedBy))

	publishStream(ctx, s.broker, logger, run.RunID(), scanning.StreamEventTypeFailed, dtos.StreamStatus{
		Status: run.Status().String(),
	})
}

// resetBackend issues a bounded reset against the shared execution backend.
func (s *SessionService) resetBackend(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sessionResetTimeout)
	defer cancel()

	if err := s.backend.Reset(ctx); err != nil {
		s.logger.Error(ctx, "Failed to reset execution backend", "error", err)
	}
}
