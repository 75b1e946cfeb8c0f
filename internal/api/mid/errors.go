package mid

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/errs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform way.
// Unexpected errors (status >= 500) are logged.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)

			err, isErr := resp.(error)
			if !isErr {
				return resp
			}

			var appErr *errs.Error
			if !errors.As(err, &appErr) {
				appErr = errs.Newf(errs.Internal, "Internal Server Error")
			}

			log.Error(ctx, "handled error during request",
				"err", err.Error(),
				"source_err_file", path.Base(appErr.FileName),
				"source_err_func", path.Base(appErr.FuncName))

			if appErr.Code == errs.Internal {
				appErr = errs.Newf(errs.Internal, "Internal Server Error")
			}

			return appErr
		}

		return h
	}

	return m
}
