package refresh

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
	"code_auth/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct{}

func (fakeRefresher) Refresh(_ context.Context, refreshToken string) (models.AuthTokens, error) {
	if refreshToken != "good" {
		return models.AuthTokens{}, auth.ErrPleaseAuthenticate
	}

	return models.AuthTokens{
		Access:  models.TokenInfo{Token: "a2"},
		Refresh: models.TokenInfo{Token: "r2"},
	}, nil
}

func TestRefreshHandler(t *testing.T) {
	t.Parallel()

	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), validator.New(), fakeRefresher{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/refresh-tokens", strings.NewReader(`{"refreshToken":"good"}`)))

	require.Equal(t, http.StatusOK, rr.Code)

	var got models.AuthTokens
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "a2", got.Access.Token)
	assert.Equal(t, "r2", got.Refresh.Token)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/refresh-tokens", strings.NewReader(`{"refreshToken":"bad"}`)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
