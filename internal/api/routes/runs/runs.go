// Package runs exposes the run lifecycle endpoints: submission, detail and
// listing queries, live output streaming, stop, and delete.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/errs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/mid"
	appScanning "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// Config contains the dependencies needed by the run handlers.
type Config struct {
	Log     *logger.Logger
	Users   catalog.UserRepository
	Service *appScanning.RunService
	Broker  domain.StreamBroker
}

// Routes binds all the run endpoints.
func Routes(app *web.App, cfg Config) {
	authen := mid.Authenticate(cfg.Users)

	app.HandlerFunc(http.MethodPost, "", "/v1/runs", create(cfg), authen)
	app.HandlerFunc(http.MethodGet, "", "/v1/runs", query(cfg), authen)
	app.HandlerFunc(http.MethodGet, "", "/v1/runs/{id}", queryByID(cfg), authen)
	app.HandlerFunc(http.MethodGet, "", "/v1/runs/{id}/stream", stream(cfg), authen)
	app.HandlerFunc(http.MethodPost, "", "/v1/runs/{id}/stop", stop(cfg), authen)
	app.HandlerFunc(http.MethodDelete, "", "/v1/runs/{id}", remove(cfg), authen)
}

func create(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		var req createRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		run, err := cfg.Service.CreateRun(ctx, appScanning.CreateRunCommand{
			User:    user,
			Tool:    req.Tool,
			ScopeID: req.ScopeID,
			Target:  req.Target,
			Params:  req.Params,
			Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return errResponse(err)
		}

		return createRunResponse{
			ID:        run.RunID(),
			Status:    run.Status().String(),
			Tool:      req.Tool,
			CreatedAt: run.CreatedAt(),
		}
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

		items, err := cfg.Service.ListRuns(ctx, user, limit, offset)
		if err != nil {
			return errResponse(err)
		}

		return toListRunsResponse(items)
	}
}

func queryByID(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		runID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		detail, err := cfg.Service.GetRun(ctx, user, runID)
		if err != nil {
			return errResponse(err)
		}

		return toRunDetailResponse(detail)
	}
}

func stop(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		runID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		run, err := cfg.Service.StopRun(ctx, user, runID)
		if err != nil {
			return errResponse(err)
		}

		return toRun(run)
	}
}

func remove(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		runID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		if err := cfg.Service.DeleteRun(ctx, user, runID); err != nil {
			return errResponse(err)
		}

		return nil
	}
}

// parseID extracts and parses the run id path parameter.
func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(web.Param(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id: %q", web.Param(r, "id"))
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
	var stateErr domain.RunInvalidStateError

	switch {
	case errors.As(err, &stateErr):
		return errs.New(errs.Aborted, err)

	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, catalog.ErrToolNotFound),
		errors.Is(err, catalog.ErrScopeNotFound):
		return errs.New(errs.NotFound, err)

	case errors.Is(err, catalog.ErrToolDisabled),
		errors.Is(err, catalog.ErrToolMissingManifest):
		return errs.New(errs.InvalidArgument, err)

	case errors.Is(err, appScanning.ErrTargetOutOfScope),
		errors.Is(err, appScanning.ErrScopeInactive),
		errors.Is(err, appScanning.ErrRunAccessDenied):
		return errs.New(errs.PermissionDenied, err)

	default:
		return errs.New(errs.Internal, err)
	}
}
