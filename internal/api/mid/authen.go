package mid

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/errs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// userIDHeader carries the caller identity. Authentication proper lives in
// front of this service; the header is trusted and only resolved against the
// catalog's user read model.
const userIDHeader = "X-User-ID"

type ctxKey int

const userKey ctxKey = 1

// setUser stores the resolved caller in the context.
func setUser(ctx context.Context, user *catalog.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the caller resolved by the Authenticate middleware.
func GetUser(ctx context.Context) (*catalog.User, error) {
	user, ok := ctx.Value(userKey).(*catalog.User)
	if !ok {
		return nil, errors.New("user missing from context")
	}
	return user, nil
}

// Authenticate resolves the caller identity header against the user read
// model and stores the user in the context for the handlers.
func Authenticate(users catalog.UserRepository) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			raw := r.Header.Get(userIDHeader)
			if raw == "" {
				return errs.Newf(errs.Unauthenticated, "missing %s header", userIDHeader)
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				return errs.Newf(errs.Unauthenticated, "malformed %s header", userIDHeader)
			}

			user, err := users.GetUser(ctx, userID)
			if err != nil {
				if errors.Is(err, catalog.ErrUserNotFound) {
					return errs.Newf(errs.Unauthenticated, "unknown user: %s", userID)
				}
				return errs.New(errs.Internal, err)
			}

			return next(setUser(ctx, user), r)
		}

		return h
	}

	return m
}
