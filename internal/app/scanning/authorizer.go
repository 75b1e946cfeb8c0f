package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

var (
	// ErrTargetOutOfScope is returned when a target falls outside the
	// boundary of the scope attached to the request.
	ErrTargetOutOfScope = errors.New("target is outside the authorized scope")

	// ErrScopeInactive is returned when the scope attached to the request
	// exists but has been deactivated.
	ErrScopeInactive = errors.New("scope is not active")
)

// TargetAuthorizer decides whether a caller may aim an execution at a target.
// Elevated callers bypass scope checks entirely; everyone else is held to the
// boundary of the scope attached to the request. A request without a scope
// carries no boundary and passes.
type TargetAuthorizer struct {
	scopes catalog.ScopeRepository

	logger *logger.Logger
	tracer trace.Tracer
}

// NewTargetAuthorizer creates a TargetAuthorizer backed by the given scope store.
func NewTargetAuthorizer(
	scopes catalog.ScopeRepository,
	logger *logger.Logger,
	tracer trace.Tracer,
) *TargetAuthorizer {
	logger = logger.With("component", "target_authorizer")
	return &TargetAuthorizer{scopes: scopes, logger: logger, tracer: tracer}
}

// Authorize checks a target against the caller's scope. It returns
// ErrTargetOutOfScope when the scope's boundary rejects the target,
// ErrScopeInactive when the scope has been switched off, and
// catalog.ErrScopeNotFound when the referenced scope does not exist.
func (a *TargetAuthorizer) Authorize(
	ctx context.Context,
	user *catalog.User,
	scopeID *uuid.UUID,
	target string,
) error {
	ctx, span := a.tracer.Start(ctx, "target_authorizer.authorize",
		trace.WithAttributes(
			attribute.String("user_id", user.UserID().String()),
			attribute.String("target", target),
		))
	defer span.End()

	if user.Role().Elevated() {
		span.AddEvent("elevated_role_bypass")
		span.SetStatus(codes.Ok, "authorized")
		return nil
	}

	if scopeID == nil {
		span.AddEvent("no_scope_attached")
		span.SetStatus(codes.Ok, "authorized")
		return nil
	}
	span.SetAttributes(attribute.String("scope_id", scopeID.String()))

	sc, err := a.scopes.GetScope(ctx, *scopeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get scope")
		return fmt.Errorf("failed to get scope (scope_id: %s): %w", scopeID, err)
	}

	if !sc.Active() {
		span.AddEvent("scope_inactive")
		span.SetStatus(codes.Error, "scope inactive")
		return fmt.Errorf("scope %s: %w", sc.Name(), ErrScopeInactive)
	}

	if !sc.Allows(target) {
		a.logger.Warn(ctx, "Target rejected by scope",
			"user_id", user.UserID(),
			"scope_name", sc.Name(),
			"target", target,
		)
		span.AddEvent("target_rejected")
		span.SetStatus(codes.Error, "target out of scope")
		return fmt.Errorf("target %q not allowed by scope %s: %w", target, sc.Name(), ErrTargetOutOfScope)
	}

	span.AddEvent("target_authorized")
	span.SetStatus(codes.Ok, "authorized")
	return nil
}
