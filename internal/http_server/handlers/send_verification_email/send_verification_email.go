package sendverificationemail

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"code_auth/internal/auth"
	"code_auth/internal/http_server/middleware/authn"
	resp "code_auth/internal/lib/api/response"
	"code_auth/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type EmailVerificationSender interface {
	SendVerificationEmail(ctx context.Context, userID string) error
}

// New godoc
// @Summary      Send verification email
// @Description  Emails a verify-email link to the authenticated user.
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  resp.Error
// @Router       /auth/send-verification-email [post]
func New(log *slog.Logger, sender EmailVerificationSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendverificationemail.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authn.UserFromContext(r.Context())
		if !ok {
			e := resp.FromError(auth.ErrPleaseAuthenticate)

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := sender.SendVerificationEmail(ctx, user.ID); err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to send verification email", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("verification email sent", slog.String("uid", user.ID))

		render.NoContent(w, r)
	}
}
