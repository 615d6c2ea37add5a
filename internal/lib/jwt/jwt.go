package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"code_auth/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the body of every token this service signs.
type Claims struct {
	Type    models.TokenType    `json:"type"`
	Payload *models.CodePayload `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func New(secret, issuer string, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}

	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
		now:    now,
	}
}

// Sign returns a HS256 token for subject. An empty id gets a random jti so two
// tokens minted in the same second for the same user never collide.
func (s *Signer) Sign(
	id string,
	subject string,
	typ models.TokenType,
	ttl time.Duration,
	payload *models.CodePayload,
) (string, time.Time, error) {
	const op = "jwt.Sign"

	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Type:    typ,
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, expiresAt, nil
}

// Parse checks signature, expiry and issuer. It does not look at the type
// claim; that is up to the caller.
func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	const op = "jwt.Parse"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method: %v", op, t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" || claims.Type == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// MAC returns the hex HMAC-SHA256 of parts joined by "|", keyed with the
// signing secret.
func (s *Signer) MAC(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(parts, "|")))

	return hex.EncodeToString(mac.Sum(nil))
}
