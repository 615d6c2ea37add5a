package sendcode

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"code_auth/internal/auth"
	resp "code_auth/internal/lib/api/response"
	"code_auth/internal/lib/logger/sl"
	"code_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username" validate:"required"`
}

type Response struct {
	Username string           `json:"username"`
	Tokens   models.TokenInfo `json:"tokens"`
}

type CodeSender interface {
	SendVerificationCode(ctx context.Context, username string) (auth.SendCodeResult, error)
}

// New godoc
// @Summary      Send verification code
// @Description  Finds or creates the user for an email or mobile username and
// @Description  delivers a one-time code. Plain usernames get a token only.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      Request  true  "username"
// @Success      200   {object}  Response
// @Failure      400   {object}  resp.Error
// @Router       /auth/send-verification-code [post]
func New(log *slog.Logger, validate *validator.Validate, codeSender CodeSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendcode.New"

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

		res, err := codeSender.SendVerificationCode(ctx, req.Username)
		if err != nil {
			e := resp.FromError(err)
			if e.Code == http.StatusInternalServerError {
				log.Error("failed to send verification code", sl.Err(err))
			}

			render.Status(r, e.Code)
			render.JSON(w, r, e)

			return
		}

		log.Info("verification code sent", slog.String("login_type", string(res.LoginType)))

		render.JSON(w, r, Response{
			Username: req.Username,
			Tokens:   res.Token,
		})
	}
}
