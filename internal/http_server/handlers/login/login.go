package login

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
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	User   models.User       `json:"user"`
	Tokens models.AuthTokens `json:"tokens"`
}

type PasswordLogin interface {
	Login(ctx context.Context, username, password string) (models.User, models.AuthTokens, error)
}

// New godoc
// @Summary      Password login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      Request  true  "credentials"
// @Success      200   {object}  Response
// @Failure      401   {object}  resp.Error
// @Router       /auth/login [post]
func New(log *slog.Logger, validate *validator.Validate, loginProvider PasswordLogin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		user, tokens, err := loginProvider.Login(ctx, req.Username, req.Password)
		if err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to login user", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("User logged in successfully", slog.String("uid", user.ID))

		render.JSON(w, r, Response{
			User:   user,
			Tokens: tokens,
		})
	}
}
