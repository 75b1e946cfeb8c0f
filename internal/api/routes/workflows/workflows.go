// Package workflows exposes the workflow session endpoints: submission with
// single-slot admission, detail and listing queries, cancel, and delete.
package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/errs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/mid"
	appWorkflow "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// Config contains the dependencies needed by the workflow handlers.
type Config struct {
	Log     *logger.Logger
	Users   catalog.UserRepository
	Service *appWorkflow.SessionService
}

// Routes binds all the workflow endpoints.
func Routes(app *web.App, cfg Config) {
	authen := mid.Authenticate(cfg.Users)

	app.HandlerFunc(http.MethodPost, "", "/v1/workflows", create(cfg), authen)
	app.HandlerFunc(http.MethodGet, "", "/v1/workflows", query(cfg), authen)
	app.HandlerFunc(http.MethodGet, "", "/v1/workflows/{id}", queryByID(cfg), authen)
	app.HandlerFunc(http.MethodPost, "", "/v1/workflows/{id}/cancel", cancel(cfg), authen)
	app.HandlerFunc(http.MethodDelete, "", "/v1/workflows/{id}", remove(cfg), authen)
}

func create(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		var req createWorkflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		sub, err := cfg.Service.CreateWorkflow(ctx, appWorkflow.CreateWorkflowCommand{
			User:      user,
			Name:      req.Name,
			Target:    req.Target,
			Objective: req.Objective,
			MaxSteps:  req.MaxSteps,
		})
		if err != nil {
			return errResponse(err)
		}

		return toCreateWorkflowResponse(sub)
	}
}

func query(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		limit, offset, err := paging(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		items, err := cfg.Service.ListWorkflows(ctx, user, limit, offset)
		if err != nil {
			return errResponse(err)
		}

		return toListWorkflowsResponse(items)
	}
}

func queryByID(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		sessionID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		detail, err := cfg.Service.GetWorkflow(ctx, user, sessionID)
		if err != nil {
			return errResponse(err)
		}

		return toWorkflowDetailResponse(detail)
	}
}

func cancel(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		sessionID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		updated, err := cfg.Service.CancelWorkflow(ctx, user, sessionID)
		if err != nil {
			return errResponse(err)
		}

		return sessionResponse{session: toSession(updated)}
	}
}

func remove(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		sessionID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		if err := cfg.Service.DeleteWorkflow(ctx, user, sessionID); err != nil {
			return errResponse(err)
		}

		return nil
	}
}

// parseID extracts and parses the session id path parameter.
func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(web.Param(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id: %q", web.Param(r, "id"))
	}
	return id, nil
}

// paging extracts the limit and offset query parameters. Missing values come
// back zero; the service applies its own defaults and caps.
func paging(r *http.Request) (limit int, offset int, err error) {
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("invalid limit: %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("invalid offset: %q", v)
		}
	}

	return limit, offset, nil
}

// errResponse maps service and domain errors onto transport error codes.
func errResponse(err error) *errs.Error {
	var stateErr domain.SessionInvalidStateError

	switch {
	case errors.As(err, &stateErr):
		return errs.New(errs.Aborted, err)

	case errors.Is(err, domain.ErrSessionNotFound):
		return errs.New(errs.NotFound, err)

	case errors.Is(err, appWorkflow.ErrInvalidObjective):
		return errs.New(errs.InvalidArgument, err)

	case errors.Is(err, appWorkflow.ErrSessionAccessDenied):
		return errs.New(errs.PermissionDenied, err)

	default:
		// The driver tool missing from the catalog lands here as well: it is
		// seeded at startup, so its absence is a deployment fault rather than
		// a caller mistake.
		return errs.New(errs.Internal, err)
	}
}
