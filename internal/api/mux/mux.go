// Package mux provides support to bind domain level routes to the
// application mux.
package mux

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/mid"
	appScanning "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning"
	appWorkflow "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build    string
	Log      *logger.Logger
	DB       *pgxpool.Pool
	Users    catalog.UserRepository
	Runs     *appScanning.RunService
	Sessions *appWorkflow.SessionService
	Broker   scanning.StreamBroker
	Metrics  mid.RequestMetrics
	Tracer   trace.Tracer
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	mw := []web.MidFunc{
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
	}
	if cfg.Metrics != nil {
		mw = append(mw, mid.Metrics(cfg.Metrics))
	}
	mw = append(mw, mid.Panics())

	app := web.NewApp(logger, cfg.Tracer, mw...)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	routeAdder.Add(app, cfg)

	return app
}
