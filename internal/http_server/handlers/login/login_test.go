package login

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
	"code_auth/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogin struct{}

func (fakeLogin) Login(_ context.Context, username, password string) (models.User, models.AuthTokens, error) {
	if password != "password1" {
		return models.User{}, models.AuthTokens{}, auth.ErrIncorrectCredentials
	}

	return models.User{ID: "1", Username: username}, models.AuthTokens{Access: models.TokenInfo{Token: "a"}}, nil
}

func TestLoginHandler(t *testing.T) {
	t.Parallel()

	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), validator.New(), fakeLogin{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"success", `{"username":"alice","password":"password1"}`, http.StatusOK},
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"alice"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))

			require.Equal(t, tt.wantStatus, rr.Code)

			switch tt.wantStatus {
			case http.StatusOK:
				var got Response
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
				assert.Equal(t, "alice", got.User.Username)
				assert.Equal(t, "a", got.Tokens.Access.Token)
				assert.NotContains(t, rr.Body.String(), "PassHash")
			case http.StatusUnauthorized:
				var e resp.Error
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
				assert.Equal(t, "Incorrect email or password", e.Message)
			}
		})
	}
}
