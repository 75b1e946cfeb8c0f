// Package health provides the liveness and readiness probe endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/errs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// readinessTimeout bounds the database ping so a wedged pool fails the probe
// instead of hanging it.
const readinessTimeout = 5 * time.Second

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
	Log   *logger.Logger
	DB    *pgxpool.Pool
}

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	app.HandlerFunc(http.MethodGet, "", "/v1/health/liveness", liveness(cfg))
	app.HandlerFunc(http.MethodGet, "", "/v1/health/readiness", readiness(cfg))
}

// livenessResponse represents the response for the liveness check.
type livenessResponse struct {
	Status string `json:"status"`
	Build  string `json:"build"`
}

// Encode implements the web.Encoder interface.
func (lr livenessResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(lr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// readyResponse represents the response for the readiness check.
type readyResponse struct {
	Status string `json:"status"`
}

// Encode implements the web.Encoder interface.
func (rr readyResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func liveness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return livenessResponse{
			Status: "ok",
			Build:  cfg.Build,
		}
	}
}

// readiness reports ready only while the database answers a bounded ping.
func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
		defer cancel()

		if err := cfg.DB.Ping(ctx); err != nil {
			cfg.Log.Error(ctx, "Readiness check failed", "error", err)
			return errs.New(errs.Internal, err)
		}

		return readyResponse{
			Status: "ready",
		}
	}
}
