package models

import "time"

type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenRefresh       TokenType = "refresh"
	TokenResetPassword TokenType = "resetPassword"
	TokenVerifyEmail   TokenType = "verifyEmail"
	TokenTemporary     TokenType = "temporary"
)

// Persisted reports whether tokens of this type are stored so they can be
// revoked or consumed.
func (t TokenType) Persisted() bool {
	switch t {
	case TokenRefresh, TokenResetPassword, TokenVerifyEmail:
		return true
	}

	return false
}

// LoginType is the channel implied by the shape of a username.
type LoginType string

const (
	LoginEmail    LoginType = "email"
	LoginMobile   LoginType = "mobile"
	LoginPassword LoginType = "password"
)

type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email,omitempty"`
	Mobile           string    `json:"mobile,omitempty"`
	Username         string    `json:"username,omitempty"`
	PassHash         []byte    `json:"-"`
	IsEmailVerified  bool      `json:"isEmailVerified"`
	IsMobileVerified bool      `json:"isMobileVerified"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Token struct {
	Value       string
	UserID      string
	Type        TokenType
	ExpiresAt   time.Time
	Blacklisted bool
}

// * IsExpired проверяет, истек ли срок действия токена
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CodePayload is carried inside a TEMPORARY token and binds a verification
// code to the username it was sent to. The code itself never leaves the
// server: CodeHash is a keyed MAC over the token id and the code.
type CodePayload struct {
	Username  string    `json:"username"`
	CodeHash  string    `json:"codeHash,omitempty"`
	LoginType LoginType `json:"loginType"`
}

type TokenInfo struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type AuthTokens struct {
	Access  TokenInfo `json:"access"`
	Refresh TokenInfo `json:"refresh"`
}

const (
	PurposeVerificationCode = "verification_code"
	PurposeResetPassword    = "reset_password"
	PurposeVerifyEmail      = "verify_email"
)

// Message is what gets published to the delivery queues.
type Message struct {
	To      string `json:"to"`
	Purpose string `json:"purpose"`
	Code    string `json:"code,omitempty"`
	Link    string `json:"link,omitempty"`
}
