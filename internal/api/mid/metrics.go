package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// RequestMetrics defines the counters the metrics middleware records into.
type RequestMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Metrics records request counts and durations. Paths are recorded as the
// raw URL path; the route set is small enough that cardinality stays sane.
func Metrics(m RequestMetrics) web.MidFunc {
	mw := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			now := time.Now()

			resp := next(ctx, r)

			m.IncRequestsTotal(ctx, r.Method, r.URL.Path, statusOf(resp))
			m.ObserveRequestDuration(ctx, r.Method, r.URL.Path, time.Since(now))

			return resp
		}

		return h
	}

	return mw
}
