package auth

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
)

// Error is a failure that is safe to show to the caller as is.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

var (
	ErrUsernameNotAvailable    = &Error{kind: KindBadRequest, msg: "Username is not available"}
	ErrNoEmailAddress          = &Error{kind: KindBadRequest, msg: "User has no email address"}
	ErrIncorrectCredentials    = &Error{kind: KindUnauthorized, msg: "Incorrect email or password"}
	ErrInvalidCode             = &Error{kind: KindUnauthorized, msg: "Token, username or code is not valid"}
	ErrPleaseAuthenticate      = &Error{kind: KindUnauthorized, msg: "Please authenticate"}
	ErrPasswordResetFailed     = &Error{kind: KindUnauthorized, msg: "Password reset failed"}
	ErrEmailVerificationFailed = &Error{kind: KindUnauthorized, msg: "Email verification failed"}
	ErrNotFound                = &Error{kind: KindNotFound, msg: "Not found"}
	ErrNoUserWithEmail         = &Error{kind: KindNotFound, msg: "No users found with this email"}
)

// KindOf reports the taxonomy kind of err. Anything that is not an *Error is
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}

	return KindInternal
}
