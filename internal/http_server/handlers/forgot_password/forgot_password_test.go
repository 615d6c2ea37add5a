package forgotpassword

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"code_auth/internal/auth"
	resp "code_auth/internal/lib/api/response"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeForgetter struct{}

func (fakeForgetter) ForgotPassword(_ context.Context, email string) error {
	if email != "known@x.com" {
		return auth.ErrNoUserWithEmail
	}

	return nil
}

func TestForgotPasswordHandler(t *testing.T) {
	t.Parallel()

	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), validator.New(), fakeForgetter{})

	do := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/forgot-password", strings.NewReader(body)))
		return rr
	}

	assert.Equal(t, http.StatusNoContent, do(`{"email":"known@x.com"}`).Code)

	rr := do(`{"email":"unknown@x.com"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var e resp.Error
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.Equal(t, "No users found with this email", e.Message)

	rr = do(`{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.Equal(t, "Email must be a valid email address", e.Message)
}
