package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"code_auth/internal/auth"
	"code_auth/internal/lib/identity"
	"code_auth/internal/lib/jwt"
	"code_auth/internal/lib/verification"
	"code_auth/internal/models"
	"code_auth/internal/storage/memory"
	"code_auth/internal/storage/redis"
	"code_auth/internal/tokens"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	sent []models.Message
}

func (o *outbox) SendEmail(_ context.Context, msg models.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) SendSMS(ctx context.Context, msg models.Message) error {
	return o.SendEmail(ctx, msg)
}

func (o *outbox) last() models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

func newTestServer(t *testing.T) (*httptest.Server, *outbox) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	guard, err := redis.New(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(guard.Close)

	validate := validator.New()
	require.NoError(t, identity.RegisterMobile(validate))

	st := memory.New()
	box := &outbox{}

	tokenService := tokens.New(log, jwt.New("0123456789abcdef0123", "code_auth", nil), st, guard, 5, nil)

	authService := auth.New(
		log,
		st,
		st,
		tokenService,
		box,
		identity.NewClassifier(validate),
		verification.NumericGenerator{Length: 6},
		auth.TTLs{
			Access:        time.Minute,
			Refresh:       time.Hour,
			ResetPassword: time.Minute,
			VerifyEmail:   time.Minute,
			Temporary:     time.Minute,
		},
		auth.Links{
			ResetPassword: "http://localhost:3000/reset-password",
			VerifyEmail:   "http://localhost:8080/auth/verify-email",
		},
	)

	srv := httptest.NewServer(setupRouter(log, validate, authService))
	t.Cleanup(srv.Close)

	return srv, box
}

func post(t *testing.T, srv *httptest.Server, path string, body any, header http.Header) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res.StatusCode, data
}

func TestCodeLoginFlow(t *testing.T) {
	srv, box := newTestServer(t)

	status, data := post(t, srv, "/auth/send-verification-code", map[string]string{"username": "user@x.com"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var sent struct {
		Username string           `json:"username"`
		Tokens   models.TokenInfo `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &sent))
	assert.Equal(t, "user@x.com", sent.Username)

	code := box.last().Code
	require.Len(t, code, 6)

	verify := map[string]string{"username": "user@x.com", "token": sent.Tokens.Token, "code": code}

	status, data = post(t, srv, "/auth/verify-code", verify, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var verified struct {
		User   models.User       `json:"user"`
		Tokens models.AuthTokens `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &verified))
	assert.True(t, verified.User.IsEmailVerified)

	status, _ = post(t, srv, "/auth/verify-code", verify, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "temporary token is single use")

	status, data = post(t, srv, "/auth/refresh-tokens", map[string]string{"refreshToken": verified.Tokens.Refresh.Token}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var rotated models.AuthTokens
	require.NoError(t, json.Unmarshal(data, &rotated))

	status, _ = post(t, srv, "/auth/refresh-tokens", map[string]string{"refreshToken": verified.Tokens.Refresh.Token}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = post(t, srv, "/auth/logout", map[string]string{"refreshToken": rotated.Refresh.Token}, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = post(t, srv, "/auth/logout", map[string]string{"refreshToken": rotated.Refresh.Token}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = post(t, srv, "/auth/refresh-tokens", map[string]string{"refreshToken": rotated.Refresh.Token}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestVerifyEmailFlow(t *testing.T) {
	srv, box := newTestServer(t)

	status, data := post(t, srv, "/auth/send-verification-code", map[string]string{"username": "09121234567"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var sent struct {
		Tokens models.TokenInfo `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &sent))

	status, data = post(t, srv, "/auth/verify-code", map[string]string{
		"username": "09121234567",
		"token":    sent.Tokens.Token,
		"code":     box.last().Code,
	}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var verified struct {
		Tokens models.AuthTokens `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &verified))

	status, _ = post(t, srv, "/auth/send-verification-email", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// a mobile-only user has no email to verify
	status, _ = post(t, srv, "/auth/send-verification-email", nil, http.Header{
		"Authorization": {"Bearer " + verified.Tokens.Access.Token},
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestForgotAndResetPassword(t *testing.T) {
	srv, box := newTestServer(t)

	status, data := post(t, srv, "/auth/send-verification-code", map[string]string{"username": "reset@x.com"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	status, _ = post(t, srv, "/auth/forgot-password", map[string]string{"email": "nobody@x.com"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = post(t, srv, "/auth/forgot-password", map[string]string{"email": "reset@x.com"}, nil)
	require.Equal(t, http.StatusNoContent, status)

	link, err := url.Parse(box.last().Link)
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", link.Host)
	assert.Equal(t, "/reset-password", link.Path)

	path := "/auth/reset-password?token=" + url.QueryEscape(link.Query().Get("token"))

	status, _ = post(t, srv, path, map[string]string{"password": "newpassword1"}, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = post(t, srv, path, map[string]string{"password": "newpassword2"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, data = post(t, srv, "/auth/login", map[string]string{"username": "reset@x.com", "password": "newpassword1"}, nil)
	assert.Equal(t, http.StatusOK, status, string(data))
}

func TestVerifyEmailLinkOpensWithGet(t *testing.T) {
	srv, box := newTestServer(t)

	status, data := post(t, srv, "/auth/send-verification-code", map[string]string{"username": "link@x.com"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var sent struct {
		Tokens models.TokenInfo `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &sent))

	status, data = post(t, srv, "/auth/verify-code", map[string]string{
		"username": "link@x.com",
		"token":    sent.Tokens.Token,
		"code":     box.last().Code,
	}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var verified struct {
		Tokens models.AuthTokens `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &verified))

	status, _ = post(t, srv, "/auth/send-verification-email", nil, http.Header{
		"Authorization": {"Bearer " + verified.Tokens.Access.Token},
	})
	require.Equal(t, http.StatusNoContent, status)

	link, err := url.Parse(box.last().Link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/verify-email", link.Path)

	get := func() int {
		res, err := srv.Client().Get(srv.URL + link.Path + "?" + link.RawQuery)
		require.NoError(t, err)
		defer res.Body.Close()
		return res.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, get())
	assert.Equal(t, http.StatusUnauthorized, get())
}

func TestVerifyCodeLimitIgnoresForwardedHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	body := map[string]string{"username": "user@x.com", "token": "garbage", "code": "123456"}

	var last int
	for i := range 11 {
		ip := fmt.Sprintf("203.0.113.%d", i+1)
		last, _ = post(t, srv, "/auth/verify-code", body, http.Header{
			"X-Real-Ip":       {ip},
			"X-Forwarded-For": {ip},
			"True-Client-Ip":  {ip},
		})
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestVerifyCodeAttemptCap(t *testing.T) {
	srv, box := newTestServer(t)

	status, data := post(t, srv, "/auth/send-verification-code", map[string]string{"username": "cap@x.com"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	var sent struct {
		Tokens models.TokenInfo `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &sent))

	code := box.last().Code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for range 5 {
		status, _ = post(t, srv, "/auth/verify-code", map[string]string{
			"username": "cap@x.com",
			"token":    sent.Tokens.Token,
			"code":     wrong,
		}, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, _ = post(t, srv, "/auth/verify-code", map[string]string{
		"username": "cap@x.com",
		"token":    sent.Tokens.Token,
		"code":     code,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
