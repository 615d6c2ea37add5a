package verifyemail

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "code_auth/internal/lib/api/response"
	"code_auth/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type EmailVerifier interface {
	VerifyEmail(ctx context.Context, verifyToken string) error
}

// New godoc
// @Summary      Verify email
// @Tags         auth
// @Param        token  query  string  true  "verify email token"
// @Success      204
// @Failure      401    {object}  resp.Error
// @Router       /auth/verify-email [get]
// @Router       /auth/verify-email [post]
func New(log *slog.Logger, verifier EmailVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyemail.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Info("missing verification token")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.NewError(http.StatusBadRequest, "token is required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := verifier.VerifyEmail(ctx, token); err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to verify email", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("email verified successfully")

		render.NoContent(w, r)
	}
}
