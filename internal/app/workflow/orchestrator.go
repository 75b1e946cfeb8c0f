// Package workflow provides the application services that drive composite
// six-phase engagements: session submission, global single-flight admission,
// the phase driver, and queue draining on terminal transitions.
package workflow

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
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/events"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

const (
	// defaultPhaseTimeout bounds each delegated phase execution.
	defaultPhaseTimeout = 15 * time.Minute

	// defaultSessionTimeout bounds a whole session across its six phases.
	defaultSessionTimeout = 2 * time.Hour
)

// errSessionHalted signals the driver that its session was forced terminal
// from outside, typically a cancellation, and must not be settled again.
var errSessionHalted = errors.New("session already terminal")

// phaseParams is the parameter bag handed to the backend with each phase.
type phaseParams struct {
	Phase     int    `json:"phase"`
	Objective string `json:"objective"`
	MaxSteps  int    `json:"max_steps"`
}

// Orchestrator owns the global execution slot and drives admitted sessions
// through the six-phase machine. A session wins the slot through an atomic
// conditional claim; everything after the claim happens on the orchestrator's
// own goroutine so callers never block on phase execution.
//
// Phase failures are contained: the step fails, a finding records the error,
// and the sequence advances. Only errors escaping a phase's own handler, or
// the session exceeding its overall budget, settle the session FAILED or
// TIMEOUT. Every terminal settlement drains the oldest queued session next.
type Orchestrator struct {
	sessions  domain.SessionRepository
	runs      scanning.RunRepository
	artifacts scanning.ArtifactRepository
	findings  findings.FindingRepository
	backend   scanning.ExecutionBackend
	broker    scanning.StreamBroker
	publisher events.DomainEventPublisher

	phaseTimeout   time.Duration
	sessionTimeout time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// OrchestratorOption defines functional options for configuring an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPhaseTimeout overrides the per-phase execution budget.
func WithPhaseTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.phaseTimeout = d }
}

// WithSessionTimeout overrides the whole-session execution budget.
func WithSessionTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.sessionTimeout = d }
}

// NewOrchestrator creates an Orchestrator for driving workflow sessions.
func NewOrchestrator(
	sessions domain.SessionRepository,
	runs scanning.RunRepository,
	artifacts scanning.ArtifactRepository,
	findingStore findings.FindingRepository,
	backend scanning.ExecutionBackend,
	broker scanning.StreamBroker,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		sessions:       sessions,
		runs:           runs,
		artifacts:      artifacts,
		findings:       findingStore,
		backend:        backend,
		broker:         broker,
		publisher:      publisher,
		phaseTimeout:   defaultPhaseTimeout,
		sessionTimeout: defaultSessionTimeout,
		logger:         logger.With("component", "workflow_orchestrator"),
		tracer:         tracer,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// SessionTimeout returns the whole-session execution budget. The session
// service stamps it onto bound runs so run listings show the real bound.
func (o *Orchestrator) SessionTimeout() time.Duration { return o.sessionTimeout }

// TryAdmit attempts to win the global execution slot for a CREATED session.
// On a won claim the session starts executing on a detached goroutine and
// true is returned; a held slot returns false with no error so the caller
// can report the queue position instead.
func (o *Orchestrator) TryAdmit(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	logger := o.logger.With("operation", "try_admit", "session_id", sessionID)
	ctx, span := o.tracer.Start(ctx, "workflow_orchestrator.try_admit",
		trace.WithAttributes(attribute.String("session_id", sessionID.String())))
	defer span.End()

	claimed, err := o.sessions.ClaimRunning(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim execution slot")
		return false, fmt.Errorf("failed to claim execution slot (session_id: %s): %w", sessionID, err)
	}
	if !claimed {
		span.AddEvent("slot_held")
		span.SetStatus(codes.Ok, "slot held by another session")
		return false, nil
	}

	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load claimed session")
		return true, fmt.Errorf("failed to load claimed session (session_id: %s): %w", sessionID, err)
	}

	publishAudit(ctx, o.publisher, logger, session.SessionID().String(),
		domain.NewSessionStartedEvent(session.SessionID(), session.Target()))

	logger.Info(ctx, "Workflow session admitted", "target", session.Target())
	span.AddEvent("session_admitted")
	span.SetStatus(codes.Ok, "session admitted")

	// The driver outlives the request that created the session.
	go o.runLoop(context.WithoutCancel(ctx), session)
	return true, nil
}

// Resume claims the oldest queued session if the execution slot is free.
// Called once at startup so a backlog left over from a previous process
// does not wait for the next terminal transition.
func (o *Orchestrator) Resume(ctx context.Context) {
	if session := o.claimNext(ctx); session != nil {
		go o.runLoop(context.WithoutCancel(ctx), session)
	}
}

// runLoop drives sessions back to back: the admitted session first, then
// whatever the drain claims, until the backlog is empty or the slot is lost.
func (o *Orchestrator) runLoop(ctx context.Context, session *domain.Session) {
	for session != nil {
		o.executeSession(ctx, session)
		session = o.claimNext(ctx)
	}
}

// claimNext is the poll-on-completion handoff: it looks up the oldest
// CREATED session and claims the slot for it. A lost claim or an empty
// backlog returns nil and the loop exits.
func (o *Orchestrator) claimNext(ctx context.Context) *domain.Session {
	logger := o.logger.With("operation", "claim_next")

	next, err := o.sessions.NextQueued(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoQueuedSessions) {
			logger.Error(ctx, "Failed to look up queued sessions", "error", err)
		}
		return nil
	}

	claimed, err := o.sessions.ClaimRunning(ctx, next.SessionID())
	if err != nil {
		logger.Error(ctx, "Failed to claim queued session", "session_id", next.SessionID(), "error", err)
		return nil
	}
	if !claimed {
		return nil
	}

	session, err := o.sessions.GetSession(ctx, next.SessionID())
	if err != nil {
		logger.Error(ctx, "Failed to load drained session", "session_id", next.SessionID(), "error", err)
		return nil
	}

	publishAudit(ctx, o.publisher, logger, session.SessionID().String(),
		domain.NewSessionStartedEvent(session.SessionID(), session.Target()))

	logger.Info(ctx, "Drained next queued session",
		"session_id", session.SessionID(), "target", session.Target())
	return session
}

// executeSession drives one admitted session to a terminal status and
// settles it, whatever happens inside.
func (o *Orchestrator) executeSession(ctx context.Context, session *domain.Session) {
	logger := o.logger.With("operation", "execute_session", "session_id", session.SessionID())
	ctx, span := o.tracer.Start(ctx, "workflow_orchestrator.execute_session",
		trace.WithAttributes(
			attribute.String("session_id", session.SessionID().String()),
			attribute.String("target", session.Target()),
			attribute.String("objective", session.Objective().String()),
		))
	defer span.End()

	o.startBoundRun(ctx, session)

	sessionCtx, cancel := context.WithTimeout(ctx, o.sessionTimeout)
	defer cancel()

	latest, err := o.driveSession(sessionCtx, session)
	if latest != nil {
		session = latest
	}

	switch {
	case err == nil:
		o.settleCompleted(ctx, session)
		span.SetStatus(codes.Ok, "session completed")

	case errors.Is(err, errSessionHalted):
		logger.Info(ctx, "Session forced terminal externally; leaving as-is")
		span.AddEvent("session_halted")
		span.SetStatus(codes.Ok, "session halted externally")

	case errors.Is(err, context.DeadlineExceeded):
		o.settleTimedOut(ctx, session, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session timed out")

	default:
		o.settleFailed(ctx, session, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session failed")
	}
}

// driveSession is the phase machine's driver loop. Each iteration reloads
// the session so external cancellation is honored at phase boundaries,
// executes the current phase with containment, then advances the pointer.
// The returned session is the freshest loaded copy; the error is nil on full
// completion and an escape error otherwise.
func (o *Orchestrator) driveSession(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	for {
		if err := ctx.Err(); err != nil {
			return session, fmt.Errorf("session budget exhausted: %w", err)
		}

		fresh, err := o.sessions.GetSession(ctx, session.SessionID())
		if err != nil {
			return session, fmt.Errorf("failed to reload session (session_id: %s): %w", session.SessionID(), err)
		}
		session = fresh

		if session.Status().IsTerminal() {
			return session, errSessionHalted
		}

		phase := session.CurrentPhase()
		step := session.Step(phase)
		if step == nil {
			return session, fmt.Errorf("session %s has no step for phase %d", session.SessionID(), phase.Ordinal())
		}

		if err := o.executePhase(ctx, session, step); err != nil {
			return session, err
		}

		publishAudit(ctx, o.publisher, o.logger, session.SessionID().String(),
			domain.NewPhaseCompletedEvent(session.SessionID(), phase, step.Status()))

		final := phase.IsFinal()
		if !final {
			session.AdvancePhase()
		}
		if err := o.sessions.UpdateSession(ctx, session); err != nil {
			return session, fmt.Errorf("failed to persist session after phase %d: %w", phase.Ordinal(), err)
		}
		if final {
			return session, nil
		}
	}
}

// executePhase runs one phase with local containment. A backend failure
// fails the step, records a finding, and returns nil so the sequence keeps
// advancing; only persistence and state-machine errors escape.
func (o *Orchestrator) executePhase(ctx context.Context, session *domain.Session, step *domain.Step) error {
	phase := step.Phase()
	logger := o.logger.With(
		"operation", "execute_phase",
		"session_id", session.SessionID(),
		"phase", phase.Ordinal(),
	)
	ctx, span := o.tracer.Start(ctx, "workflow_orchestrator.execute_phase",
		trace.WithAttributes(
			attribute.String("session_id", session.SessionID().String()),
			attribute.Int("phase", phase.Ordinal()),
			attribute.String("phase_name", phase.Name()),
		))
	defer span.End()

	publishAudit(ctx, o.publisher, logger, session.SessionID().String(),
		domain.NewPhaseStartedEvent(session.SessionID(), phase))

	if err := step.Start(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start step")
		return fmt.Errorf("failed to start step for phase %d: %w", phase.Ordinal(), err)
	}
	if err := o.sessions.UpdateStep(ctx, step); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist running step")
		return fmt.Errorf("failed to persist running step (phase: %d): %w", phase.Ordinal(), err)
	}

	runID := session.RunID()
	hooks := scanning.ExecutionHooks{
		OnOutput: func(chunk []byte) {
			publishStream(ctx, o.broker, logger, runID, scanning.StreamEventTypeOutput,
				dtos.StreamOutput{Chunk: string(chunk)})
		},
		OnToolStart: func(name string, params json.RawMessage) {
			publishStream(ctx, o.broker, logger, runID, scanning.StreamEventTypeToolStart,
				dtos.StreamToolStart{Name: name, Params: params})
		},
		OnToolComplete: func(name string, exitCode int, duration time.Duration) {
			publishStream(ctx, o.broker, logger, runID, scanning.StreamEventTypeToolComplete,
				dtos.StreamToolComplete{Name: name, ExitCode: exitCode, DurationMS: duration.Milliseconds()})
		},
		OnProgress: func(message string) {
			publishStream(ctx, o.broker, logger, runID, scanning.StreamEventTypeProgress,
				dtos.StreamProgress{Message: message})
		},
	}

	params, err := json.Marshal(phaseParams{
		Phase:     phase.Ordinal(),
		Objective: session.Objective().String(),
		MaxSteps:  session.MaxSteps(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode phase params: %w", err)
	}

	phaseCtx, cancel := context.WithTimeout(ctx, o.phaseTimeout)
	defer cancel()

	result, execErr := o.backend.Execute(phaseCtx, scanning.ExecutionRequest{
		RunID:   runID,
		Task:    phase.TaskDescription(session.Target(), session.Objective()),
		Target:  session.Target(),
		Params:  params,
		Timeout: o.phaseTimeout,
	}, hooks)

	if execErr != nil {
		return o.containPhaseFailure(ctx, logger, session, step, execErr)
	}

	outcome := synthesizePhase(session.SessionID(), phase, result)
	o.recordFinding(ctx, logger, session, outcome.finding, outcome.severity)
	for _, alarm := range outcome.alarms {
		o.recordFinding(ctx, logger, session, alarm, alarm.Severity())
	}

	artifact := scanning.NewArtifact(runID,
		fmt.Sprintf("phase_%d_analysis", phase.Ordinal()),
		scanning.ArtifactKindAnalysis,
		[]byte(result.Analysis))
	if err := o.artifacts.UpsertArtifact(ctx, artifact); err != nil {
		logger.Error(ctx, "Failed to persist phase analysis artifact", "error", err)
	}

	if err := step.Complete(outcome.impact, outcome.extraction.Remediation()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to complete step")
		return fmt.Errorf("failed to complete step for phase %d: %w", phase.Ordinal(), err)
	}
	if err := o.sessions.UpdateStep(ctx, step); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist completed step")
		return fmt.Errorf("failed to persist completed step (phase: %d): %w", phase.Ordinal(), err)
	}

	logger.Info(ctx, "Phase completed",
		"severity", outcome.severity,
		"alarm_findings", len(outcome.alarms),
		"invocations", len(result.SubInvocations),
		"tokens_used", result.TokensUsed,
	)
	span.AddEvent("phase_completed", trace.WithAttributes(
		attribute.String("severity", outcome.severity.String()),
		attribute.Int("alarm_findings", len(outcome.alarms)),
	))
	span.SetStatus(codes.Ok, "phase completed")
	return nil
}

// containPhaseFailure absorbs a failed or timed-out phase execution: the
// step goes terminal with the error text, a finding records the gap in
// coverage, and the phase sequence keeps advancing. Only failures of the
// containment bookkeeping itself escape.
func (o *Orchestrator) containPhaseFailure(
	ctx context.Context,
	logger *logger.Logger,
	session *domain.Session,
	step *domain.Step,
	execErr error,
) error {
	phase := step.Phase()
	timedOut := errors.Is(execErr, context.DeadlineExceeded)

	var transition error
	if timedOut {
		transition = step.MarkTimeout(fmt.Sprintf("phase timed out after %s", o.phaseTimeout))
	} else {
		transition = step.Fail(execErr.Error())
	}
	if transition != nil {
		return fmt.Errorf("failed to mark step terminal (phase: %d): %w", phase.Ordinal(), transition)
	}
	if err := o.sessions.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("failed to persist failed step (phase: %d): %w", phase.Ordinal(), err)
	}

	finding, severity := containmentFinding(session.SessionID(), phase, execErr.Error(), timedOut)
	o.recordFinding(ctx, logger, session, finding, severity)

	publishStream(ctx, o.broker, logger, session.RunID(), scanning.StreamEventTypeProgress,
		dtos.StreamProgress{Message: fmt.Sprintf("%s phase did not finish: %s", phase.Name(), execErr)})

	logger.Warn(ctx, "Phase failure contained", "phase", phase.Name(), "timed_out", timedOut, "error", execErr)
	return nil
}

// recordFinding persists a finding and folds its severity into the session
// risk score. A failed write costs a single finding, never the phase.
func (o *Orchestrator) recordFinding(
	ctx context.Context,
	logger *logger.Logger,
	session *domain.Session,
	finding *findings.Finding,
	severity findings.Severity,
) {
	if err := o.findings.CreateFinding(ctx, finding); err != nil {
		logger.Error(ctx, "Failed to persist finding", "title", finding.Title(), "error", err)
		return
	}
	session.AddRisk(severity.Weight())
}

// startBoundRun moves the session's bound run to RUNNING so stream pollers
// observe the engagement as live. Failures are logged; the session drives on.
func (o *Orchestrator) startBoundRun(ctx context.Context, session *domain.Session) {
	logger := o.logger.With("operation", "start_bound_run", "session_id", session.SessionID())

	run, err := o.runs.GetRun(ctx, session.RunID())
	if err != nil {
		logger.Error(ctx, "Failed to load bound run", "run_id", session.RunID(), "error", err)
		return
	}
	if err := run.Start(); err != nil {
		logger.Warn(ctx, "Bound run no longer pending", "run_id", run.RunID(), "status", run.Status())
		return
	}
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		logger.Error(ctx, "Failed to persist bound run start", "run_id", run.RunID(), "error", err)
		return
	}

	publishAudit(ctx, o.publisher, logger, run.RunID().String(),
		scanning.NewRunStartedEvent(run.RunID(), run.Target()))
}

// settleCompleted marks a fully driven session COMPLETED. The reload keeps a
// session cancelled during the last phase terminal instead of resurrecting it.
func (o *Orchestrator) settleCompleted(ctx context.Context, session *domain.Session) {
	logger := o.logger.With("operation", "settle_session", "session_id", session.SessionID())

	session = o.reloadForSettle(ctx, logger, session)
	if session == nil {
		return
	}

	if err := session.Complete(); err != nil {
		logger.Error(ctx, "Failed to complete session", "error", err)
		return
	}
	if err := o.sessions.UpdateSession(ctx, session); err != nil {
		logger.Error(ctx, "Failed to persist completed session", "error", err)
		return
	}

	exitCode := 0
	o.settleBoundRun(ctx, logger, session, func(run *scanning.Run) error {
		return run.Complete(exitCode)
	}, scanning.NewRunCompletedEvent(session.RunID(), exitCode),
		scanning.StreamEventTypeCompleted,
		dtos.StreamStatus{Status: scanning.RunStatusCompleted.String(), ExitCode: &exitCode})

	publishAudit(ctx, o.publisher, logger, session.SessionID().String(),
		domain.NewSessionCompletedEvent(session.SessionID(), session.RiskScore()))

	logger.Info(ctx, "Workflow session completed",
		"risk_score", session.RiskScore(), "progress", session.Progress())
}

// settleFailed marks a session FAILED after an error escaped a phase handler.
func (o *Orchestrator) settleFailed(ctx context.Context, session *domain.Session, escapeErr error) {
	logger := o.logger.With("operation", "settle_session", "session_id", session.SessionID())

	session = o.reloadForSettle(ctx, logger, session)
	if session == nil {
		return
	}

	reason := escapeErr.Error()
	if err := session.Fail(reason); err != nil {
		logger.Error(ctx, "Failed to fail session", "error", err)
		return
	}
	if err := o.sessions.UpdateSession(ctx, session); err != nil {
		logger.Error(ctx, "Failed to persist failed session", "error", err)
		return
	}

	o.settleBoundRun(ctx, logger, session, func(run *scanning.Run) error {
		return run.Fail(reason)
	}, scanning.NewRunFailedEvent(session.RunID(), reason),
		scanning.StreamEventTypeFailed,
		dtos.StreamStatus{Status: scanning.RunStatusFailed.String(), Error: reason})

	publishAudit(ctx, o.publisher, logger, session.SessionID().String(),
		domain.NewSessionFailedEvent(session.SessionID(), reason))

	logger.Error(ctx, "Workflow session failed", "error", escapeErr)
}

// settleTimedOut marks a session TIMEOUT after its overall budget ran out.
func (o *Orchestrator) settleTimedOut(ctx context.Context, session *domain.Session, cause error) {
	logger := o.logger.With("operation", "settle_session", "session_id", session.SessionID())

	session = o.reloadForSettle(ctx, logger, session)
	if session == nil {
		return
	}

	reason := fmt.Sprintf("session timed out after %s", o.sessionTimeout)
	if err := session.MarkTimeout(reason); err != nil {
		logger.Error(ctx, "Failed to time out session", "error", err)
		return
	}
	if err := o.sessions.UpdateSession(ctx, session); err != nil {
		logger.Error(ctx, "Failed to persist timed out session", "error", err)
		return
	}

	o.settleBoundRun(ctx, logger, session, func(run *scanning.Run) error {
		return run.MarkTimeout(reason)
	}, scanning.NewRunTimedOutEvent(session.RunID(), reason),
		scanning.StreamEventTypeFailed,
		dtos.StreamStatus{Status: scanning.RunStatusTimeout.String(), Error: reason})

	publishAudit(ctx, o.publisher, logger, session.SessionID().String(),
		domain.NewSessionFailedEvent(session.SessionID(), reason))

	logger.Error(ctx, "Workflow session timed out", "cause", cause)
}

// reloadForSettle fetches the freshest session state before a terminal
// transition, returning nil when the session is already terminal or gone.
func (o *Orchestrator) reloadForSettle(ctx context.Context, logger *logger.Logger, session *domain.Session) *domain.Session {
	fresh, err := o.sessions.GetSession(ctx, session.SessionID())
	if err != nil {
		logger.Error(ctx, "Failed to reload session for settlement", "error", err)
		return nil
	}
	if fresh.Status().IsTerminal() {
		logger.Info(ctx, "Session already terminal; leaving as-is", "status", fresh.Status())
		return nil
	}
	return fresh
}

// settleBoundRun applies a terminal transition to the session's bound run and
// emits the matching audit and stream events. An already-terminal run is left
// alone; failures are logged and never escalate past settlement.
func (o *Orchestrator) settleBoundRun(
	ctx context.Context,
	logger *logger.Logger,
	session *domain.Session,
	transition func(*scanning.Run) error,
	audit auditEvent,
	streamType scanning.StreamEventType,
	streamPayload any,
) {
	run, err := o.runs.GetRun(ctx, session.RunID())
	if err != nil {
		logger.Error(ctx, "Failed to load bound run for settlement", "run_id", session.RunID(), "error", err)
		return
	}
	if run.Status().IsTerminal() {
		return
	}
	if err := transition(run); err != nil {
		logger.Error(ctx, "Failed to transition bound run", "run_id", run.RunID(), "error", err)
		return
	}
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		logger.Error(ctx, "Failed to persist bound run settlement", "run_id", run.RunID(), "error", err)
		return
	}

	publishAudit(ctx, o.publisher, logger, run.RunID().String(), audit)
	publishStream(ctx, o.broker, logger, run.RunID(), streamType, streamPayload)
}
