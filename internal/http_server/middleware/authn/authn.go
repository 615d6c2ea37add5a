package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"code_auth/internal/auth"
	resp "code_auth/internal/lib/api/response"
	"code_auth/internal/lib/logger/sl"
	"code_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

// New requires a valid ACCESS token in the Authorization header and puts the
// token's user into the request context.
func New(log *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r)
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if auth.KindOf(err) == auth.KindInternal {
					log.Error("failed to authenticate", sl.Err(err))
				}

				unauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "

	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])

	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	e := resp.FromError(auth.ErrPleaseAuthenticate)

	render.Status(r, e.Code)
	render.JSON(w, r, e)
}
