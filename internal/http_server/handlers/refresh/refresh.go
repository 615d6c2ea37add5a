package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "code_auth/internal/lib/api/response"
	"code_auth/internal/lib/logger/sl"
	"code_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.AuthTokens, error)
}

// New godoc
// @Summary      Refresh tokens
// @Description  Rotates a refresh token: the old one is removed and a new pair is issued.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      Request  true  "refresh token"
// @Success      200   {object}  models.AuthTokens
// @Failure      401   {object}  resp.Error
// @Router       /auth/refresh-tokens [post]
func New(log *slog.Logger, validate *validator.Validate, refresher TokenRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

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

		tokens, err := refresher.Refresh(ctx, req.RefreshToken)
		if err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to refresh tokens", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("tokens refreshed")

		render.JSON(w, r, tokens)
	}
}
