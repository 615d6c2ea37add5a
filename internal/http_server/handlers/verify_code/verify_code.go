package verifycode

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
	Token    string `json:"token" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

type Response struct {
	Username string            `json:"username"`
	User     models.User       `json:"user"`
	Tokens   models.AuthTokens `json:"tokens"`
}

type CodeVerifier interface {
	VerifyCode(ctx context.Context, username, token, code string) (models.User, models.AuthTokens, error)
}

// New godoc
// @Summary      Verify code
// @Description  Exchanges a temporary token and the delivered code for an
// @Description  access/refresh token pair.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      Request  true  "username, token and code"
// @Success      200   {object}  Response
// @Failure      401   {object}  resp.Error
// @Router       /auth/verify-code [post]
func New(log *slog.Logger, validate *validator.Validate, codeVerifier CodeVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifycode.New"

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

		user, tokens, err := codeVerifier.VerifyCode(ctx, req.Username, req.Token, req.Code)
		if err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to verify code", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("code verified", slog.String("uid", user.ID))

		render.JSON(w, r, Response{
			Username: req.Username,
			User:     user,
			Tokens:   tokens,
		})
	}
}
