package resetpassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "code_auth/internal/lib/api/response"
	"code_auth/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Password string `json:"password" validate:"required,min=8"`
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// New godoc
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Param        token  query  string   true  "reset password token"
// @Param        body   body   Request  true  "new password"
// @Success      204
// @Failure      401    {object}  resp.Error
// @Router       /auth/reset-password [post]
func New(log *slog.Logger, validate *validator.Validate, resetter PasswordResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetpassword.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Info("missing reset password token")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.NewError(http.StatusBadRequest, "token is required"))

			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.NewError(http.StatusBadRequest, "Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Info("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(http.StatusBadRequest, validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := resetter.ResetPassword(ctx, token, req.Password); err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to reset password", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("password reset")

		render.NoContent(w, r)
	}
}
