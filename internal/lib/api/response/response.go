package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"code_auth/internal/auth"

	"github.com/go-playground/validator/v10"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewError(code int, msg string) Error {
	return Error{
		Code:    code,
		Message: msg,
	}
}

func ValidationError(code int, errs validator.ValidationErrors) Error {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("%s is required", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("%s must be a valid email address", err.Field()))
		case "mobile":
			errMsgs = append(errMsgs, fmt.Sprintf("%s must be a valid mobile number", err.Field()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("%s is not valid", err.Field()))
		}
	}

	return Error{
		Code:    code,
		Message: strings.Join(errMsgs, ", "),
	}
}

// FromError maps a service error to the response that may be shown to the
// caller. Anything outside the auth taxonomy becomes a 500 with no detail.
func FromError(err error) Error {
	var e *auth.Error
	if !errors.As(err, &e) {
		return NewError(http.StatusInternalServerError, "Internal error")
	}

	switch e.Kind() {
	case auth.KindBadRequest:
		return NewError(http.StatusBadRequest, e.Error())
	case auth.KindUnauthorized:
		return NewError(http.StatusUnauthorized, e.Error())
	case auth.KindNotFound:
		return NewError(http.StatusNotFound, e.Error())
	}

	return NewError(http.StatusInternalServerError, "Internal error")
}
