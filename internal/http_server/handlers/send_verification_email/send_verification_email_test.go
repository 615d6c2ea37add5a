package sendverificationemail

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"code_auth/internal/auth"
	"code_auth/internal/http_server/middleware/authn"
	"code_auth/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakeAuth struct {
	sentTo string
}

func (f *fakeAuth) Authenticate(_ context.Context, accessToken string) (models.User, error) {
	if accessToken != "access" {
		return models.User{}, auth.ErrPleaseAuthenticate
	}

	return models.User{ID: "42", Email: "user@x.com"}, nil
}

func (f *fakeAuth) SendVerificationEmail(_ context.Context, userID string) error {
	f.sentTo = userID
	return nil
}

func TestSendVerificationEmailHandler(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &fakeAuth{}
	h := authn.New(log, svc)(New(log, svc))

	req := httptest.NewRequest(http.MethodPost, "/auth/send-verification-email", nil)
	req.Header.Set("Authorization", "Bearer access")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "42", svc.sentTo)
}

func TestSendVerificationEmailHandler_Unauthenticated(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &fakeAuth{}

	rr := httptest.NewRecorder()
	New(log, svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/send-verification-email", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.sentTo)
}
