package forgotpassword

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
	Email string `json:"email" validate:"required,email"`
}

type PasswordForgetter interface {
	ForgotPassword(ctx context.Context, email string) error
}

// New godoc
// @Summary      Forgot password
// @Description  Emails a reset-password link to the account with this address.
// @Tags         auth
// @Accept       json
// @Param        body  body  Request  true  "email"
// @Success      204
// @Failure      404   {object}  resp.Error
// @Router       /auth/forgot-password [post]
func New(log *slog.Logger, validate *validator.Validate, forgetter PasswordForgetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgotpassword.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

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

		if err := forgetter.ForgotPassword(ctx, req.Email); err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to start password reset", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		render.NoContent(w, r)
	}
}
