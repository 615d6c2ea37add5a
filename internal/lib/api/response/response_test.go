package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"code_auth/internal/auth"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Error
	}{
		{"bad request", auth.ErrUsernameNotAvailable, Error{http.StatusBadRequest, "Username is not available"}},
		{"unauthorized", auth.ErrInvalidCode, Error{http.StatusUnauthorized, "Token, username or code is not valid"}},
		{"wrapped unauthorized", fmt.Errorf("x: %w", auth.ErrPleaseAuthenticate), Error{http.StatusUnauthorized, "Please authenticate"}},
		{"not found", auth.ErrNotFound, Error{http.StatusNotFound, "Not found"}},
		{"internal", errors.New("pq: connection refused"), Error{http.StatusInternalServerError, "Internal error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FromError(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	type req struct {
		Email    string `validate:"required,email"`
		Password string `validate:"min=8"`
	}

	err := validator.New().Struct(req{Password: "short"})

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	got := ValidationError(http.StatusBadRequest, verrs)

	assert.Equal(t, http.StatusBadRequest, got.Code)
	assert.Equal(t, "Email is required, Password must be at least 8 characters", got.Message)
}
