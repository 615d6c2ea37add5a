package logout

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
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutProvider interface {
	Logout(ctx context.Context, refreshToken string) error
}

// New godoc
// @Summary      Logout
// @Description  Removes the refresh token. Unknown or blacklisted tokens give 404.
// @Tags         auth
// @Accept       json
// @Param        body  body  Request  true  "refresh token"
// @Success      204
// @Failure      404   {object}  resp.Error
// @Router       /auth/logout [post]
func New(log *slog.Logger, validate *validator.Validate, logoutProvider LogoutProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

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

		if err := logoutProvider.Logout(ctx, req.RefreshToken); err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to logout user", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("user logged out successfully")

		render.NoContent(w, r)
	}
}
