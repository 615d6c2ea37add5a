package tokens

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"code_auth/internal/lib/jwt"
	sl "code_auth/internal/lib/logger/sl"
	"code_auth/internal/models"
	"code_auth/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")

	ErrTooManyAttempts = errors.New("too many attempts")
)

type Store interface {
	SaveToken(ctx context.Context, token models.Token) error
	Token(ctx context.Context, value string) (models.Token, error)
	DeleteToken(ctx context.Context, value string) error
	DeleteUserTokens(ctx context.Context, userID string, typ models.TokenType) (int64, error)
}

// ReplayGuard remembers consumed tokens that are not persisted in Store and
// counts verification attempts made against them.
type ReplayGuard interface {
	MarkTokenUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	CountAttempt(ctx context.Context, tokenID string, ttl time.Duration) (int64, error)
}

type Service struct {
	log         *slog.Logger
	signer      *jwt.Signer
	store       Store
	guard       ReplayGuard
	maxAttempts int
	now         func() time.Time
}

// New builds the token service. maxAttempts caps how many times a single
// TEMPORARY token can be checked; zero or less disables the cap.
func New(
	log *slog.Logger,
	signer *jwt.Signer,
	store Store,
	guard ReplayGuard,
	maxAttempts int,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}

	return &Service{
		log:         log,
		signer:      signer,
		store:       store,
		guard:       guard,
		maxAttempts: maxAttempts,
		now:         now,
	}
}

// Issue signs a token for userID and persists it when the type is revocable.
func (s *Service) Issue(
	ctx context.Context,
	userID string,
	typ models.TokenType,
	ttl time.Duration,
) (models.TokenInfo, error) {
	return s.issue(ctx, "", userID, typ, ttl, nil)
}

// IssueTemporary signs a TEMPORARY token bound to username. A non-empty code
// is stored only as a MAC keyed with the signing secret and the token id.
// The token is never persisted: its lifetime is the token's own expiry.
func (s *Service) IssueTemporary(
	ctx context.Context,
	userID string,
	username string,
	loginType models.LoginType,
	code string,
	ttl time.Duration,
) (models.TokenInfo, error) {
	id := uuid.NewString()

	payload := &models.CodePayload{
		Username:  username,
		LoginType: loginType,
	}
	if code != "" {
		payload.CodeHash = s.signer.MAC(id, code)
	}

	return s.issue(ctx, id, userID, models.TokenTemporary, ttl, payload)
}

// CodeMatches reports whether code is the one the TEMPORARY token was issued
// for. Tokens issued without a code never match.
func (s *Service) CodeMatches(claims *jwt.Claims, code string) bool {
	if claims == nil || claims.Payload == nil || claims.Payload.CodeHash == "" {
		return false
	}

	want := claims.Payload.CodeHash
	got := s.signer.MAC(claims.ID, code)

	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// RecordAttempt counts one verification attempt against a TEMPORARY token and
// fails with ErrTooManyAttempts once the cap is exceeded.
func (s *Service) RecordAttempt(ctx context.Context, claims *jwt.Claims) error {
	const op = "tokens.RecordAttempt"

	if s.guard == nil || s.maxAttempts <= 0 {
		return nil
	}

	n, err := s.guard.CountAttempt(ctx, claims.ID, s.remaining(claims))
	if err != nil {
		s.log.Error("failed to count attempt",
			slog.String("op", op),
			sl.Err(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	if n > int64(s.maxAttempts) {
		s.log.Warn("attempt limit reached",
			slog.String("op", op),
			slog.String("jti", claims.ID),
			slog.Int64("attempts", n),
		)
		return fmt.Errorf("%s: %w", op, ErrTooManyAttempts)
	}

	return nil
}

func (s *Service) IssueAuthTokens(
	ctx context.Context,
	userID string,
	accessTTL, refreshTTL time.Duration,
) (models.AuthTokens, error) {
	const op = "tokens.IssueAuthTokens"

	access, err := s.Issue(ctx, userID, models.TokenAccess, accessTTL)
	if err != nil {
		return models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.Issue(ctx, userID, models.TokenRefresh, refreshTTL)
	if err != nil {
		return models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.AuthTokens{
		Access:  access,
		Refresh: refresh,
	}, nil
}

func (s *Service) issue(
	ctx context.Context,
	id string,
	userID string,
	typ models.TokenType,
	ttl time.Duration,
	payload *models.CodePayload,
) (models.TokenInfo, error) {
	const op = "tokens.Issue"

	value, expiresAt, err := s.signer.Sign(id, userID, typ, ttl, payload)
	if err != nil {
		return models.TokenInfo{}, fmt.Errorf("%s: %w", op, err)
	}

	if typ.Persisted() {
		err = s.store.SaveToken(ctx, models.Token{
			Value:     value,
			UserID:    userID,
			Type:      typ,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return models.TokenInfo{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return models.TokenInfo{
		Token:   value,
		Expires: expiresAt,
	}, nil
}

// Verify checks signature, expiry and type, and for revocable types that a
// live record still exists. It does not consume the token.
func (s *Service) Verify(ctx context.Context, value string, typ models.TokenType) (*jwt.Claims, error) {
	const op = "tokens.Verify"

	claims, err := s.signer.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if claims.Type != typ {
		return nil, fmt.Errorf("%s: %w: want %s, got %s", op, ErrInvalidToken, typ, claims.Type)
	}

	if typ == models.TokenTemporary && claims.Payload == nil {
		return nil, fmt.Errorf("%s: %w: missing payload", op, ErrInvalidToken)
	}

	if !typ.Persisted() {
		return claims, nil
	}

	rec, err := s.store.Token(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRevoked)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if rec.Blacklisted || rec.Type != typ || rec.UserID != claims.Subject {
		return nil, fmt.Errorf("%s: %w", op, ErrRevoked)
	}

	return claims, nil
}

// Consume verifies the token and then makes sure it can never verify again:
// persisted records are deleted, TEMPORARY tokens are marked used.
func (s *Service) Consume(ctx context.Context, value string, typ models.TokenType) (*jwt.Claims, error) {
	const op = "tokens.Consume"

	log := s.log.With(
		slog.String("op", op),
		slog.String("type", string(typ)),
	)

	claims, err := s.Verify(ctx, value, typ)
	if err != nil {
		return nil, err
	}

	if typ.Persisted() {
		if err := s.store.DeleteToken(ctx, value); err != nil {
			if errors.Is(err, storage.ErrTokenNotFound) {
				log.Warn("token already consumed")
				return nil, fmt.Errorf("%s: %w", op, ErrRevoked)
			}

			log.Error("failed to delete token", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return claims, nil
	}

	if s.guard == nil {
		return claims, nil
	}

	first, err := s.guard.MarkTokenUsed(ctx, claims.ID, s.remaining(claims))
	if err != nil {
		log.Error("failed to mark token as used", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !first {
		log.Warn("token replay detected", slog.String("jti", claims.ID))
		return nil, fmt.Errorf("%s: %w", op, ErrRevoked)
	}

	return claims, nil
}

// remaining is how long guard entries for claims must live: until the token
// itself expires, and never less than a second.
func (s *Service) remaining(claims *jwt.Claims) time.Duration {
	ttl := time.Second
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	return ttl
}

// Revoke removes a persisted token by value.
func (s *Service) Revoke(ctx context.Context, value string) error {
	const op = "tokens.Revoke"

	if err := s.store.DeleteToken(ctx, value); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return fmt.Errorf("%s: %w", op, ErrRevoked)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAll removes every token of typ belonging to userID.
func (s *Service) RevokeAll(ctx context.Context, userID string, typ models.TokenType) (int64, error) {
	const op = "tokens.RevokeAll"

	n, err := s.store.DeleteUserTokens(ctx, userID, typ)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// Find returns the live persisted record for value. Missing, blacklisted or
// differently typed records are all reported as ErrRevoked.
func (s *Service) Find(ctx context.Context, value string, typ models.TokenType) (models.Token, error) {
	const op = "tokens.Find"

	rec, err := s.store.Token(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return models.Token{}, fmt.Errorf("%s: %w", op, ErrRevoked)
		}

		return models.Token{}, fmt.Errorf("%s: %w", op, err)
	}

	if rec.Blacklisted || rec.Type != typ {
		return models.Token{}, fmt.Errorf("%s: %w", op, ErrRevoked)
	}

	return rec, nil
}
