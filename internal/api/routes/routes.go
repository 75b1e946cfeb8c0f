// Package routes binds the route groups to the application mux.
package routes

import (
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/mux"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/routes/health"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/routes/runs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/routes/workflows"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		DB:    cfg.DB,
	})

	runs.Routes(app, runs.Config{
		Log:     cfg.Log,
		Users:   cfg.Users,
		Service: cfg.Runs,
		Broker:  cfg.Broker,
	})

	workflows.Routes(app, workflows.Config{
		Log:     cfg.Log,
		Users:   cfg.Users,
		Service: cfg.Sessions,
	})
}
