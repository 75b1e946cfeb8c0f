// Package mid provides the middleware functions applied to every route.
package mid

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// httpStatus mirrors the web package's status override so the logger can
// report the code a response will carry without writing it.
type httpStatus interface {
	HTTPStatus() int
}

// statusOf derives the status code a response encoder will produce, using the
// same rules the web package applies when writing it.
func statusOf(resp web.Encoder) int {
	switch v := resp.(type) {
	case httpStatus:
		return v.HTTPStatus()
	case error:
		return http.StatusInternalServerError
	default:
		if resp == nil {
			return http.StatusNoContent
		}
		return http.StatusOK
	}
}

// Logger writes information about the request to the logs.
func Logger(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			now := time.Now()

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			log.Info(ctx, "request started", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)

			resp := next(ctx, r)

			log.Info(ctx, "request completed", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr,
				"statuscode", statusOf(resp), "since", time.Since(now).String())

			return resp
		}

		return h
	}

	return m
}
