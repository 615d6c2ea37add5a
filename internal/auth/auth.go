package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	sl "code_auth/internal/lib/logger/sl"
	"code_auth/internal/lib/verification"
	"code_auth/internal/models"
	"code_auth/internal/storage"
	"code_auth/internal/tokens"

	"golang.org/x/crypto/bcrypt"
)

type UserSaver interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	SetEmailVerified(ctx context.Context, id string) error
	SetMobileVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passHash []byte) error
}

type UserProvider interface {
	UserByID(ctx context.Context, id string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByMobile(ctx context.Context, mobile string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

// Notifier hands messages to the delivery channels. Sends are best effort.
type Notifier interface {
	SendEmail(ctx context.Context, msg models.Message) error
	SendSMS(ctx context.Context, msg models.Message) error
}

// Classifier canonicalizes a username and tells how it should be resolved.
type Classifier interface {
	Normalize(username string) (string, models.LoginType)
}

type TTLs struct {
	Access        time.Duration
	Refresh       time.Duration
	ResetPassword time.Duration
	VerifyEmail   time.Duration
	Temporary     time.Duration
}

// Links are the pages the emailed tokens are appended to as ?token=. They
// usually belong to a front-end that then POSTs the token back.
type Links struct {
	ResetPassword string
	VerifyEmail   string
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokens      *tokens.Service
	notifier    Notifier
	classifier  Classifier
	codes       verification.CodeGenerator
	ttl         TTLs
	links       Links
}

// SendCodeResult is what a caller gets back from SendVerificationCode.
type SendCodeResult struct {
	User      models.User
	LoginType models.LoginType
	Token     models.TokenInfo
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenService *tokens.Service,
	notifier Notifier,
	classifier Classifier,
	codes verification.CodeGenerator,
	ttl TTLs,
	links Links,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokens:      tokenService,
		notifier:    notifier,
		classifier:  classifier,
		codes:       codes,
		ttl:         ttl,
		links:       links,
	}
}

// * SendVerificationCode находит или создает пользователя и отправляет ему код
func (a *Auth) SendVerificationCode(ctx context.Context, username string) (SendCodeResult, error) {
	const op = "auth.SendVerificationCode"

	username, loginType := a.classifier.Normalize(username)

	log := a.log.With(
		slog.String("op", op),
		slog.String("login_type", string(loginType)),
	)

	user, err := a.resolveUser(ctx, username, loginType)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("username is not available")
			return SendCodeResult{}, ErrUsernameNotAvailable
		}

		log.Error("failed to resolve user", sl.Err(err))
		return SendCodeResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var code string
	if loginType != models.LoginPassword {
		code, err = a.codes.Generate()
		if err != nil {
			log.Error("failed to generate code", sl.Err(err))
			return SendCodeResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	token, err := a.tokens.IssueTemporary(ctx, user.ID, username, loginType, code, a.ttl.Temporary)
	if err != nil {
		log.Error("failed to issue temporary token", sl.Err(err))
		return SendCodeResult{}, fmt.Errorf("%s: %w", op, err)
	}

	msg := models.Message{
		To:      username,
		Purpose: models.PurposeVerificationCode,
		Code:    code,
	}

	switch loginType {
	case models.LoginEmail:
		if err := a.notifier.SendEmail(ctx, msg); err != nil {
			log.Error("failed to send verification code email", sl.Err(err))
		}
	case models.LoginMobile:
		if err := a.notifier.SendSMS(ctx, msg); err != nil {
			log.Error("failed to send verification code sms", sl.Err(err))
		}
	}

	log.Info("verification code issued", slog.String("uid", user.ID))

	return SendCodeResult{
		User:      user,
		LoginType: loginType,
		Token:     token,
	}, nil
}

// * VerifyCode проверяет код из временного токена и выдает пару токенов
func (a *Auth) VerifyCode(
	ctx context.Context,
	username, token, code string,
) (models.User, models.AuthTokens, error) {
	const op = "auth.VerifyCode"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(ctx, token, models.TokenTemporary)
	if err != nil {
		log.Info("invalid temporary token", sl.Err(err))
		return models.User{}, models.AuthTokens{}, ErrInvalidCode
	}

	if err := a.tokens.RecordAttempt(ctx, claims); err != nil {
		if errors.Is(err, tokens.ErrTooManyAttempts) {
			return models.User{}, models.AuthTokens{}, ErrInvalidCode
		}

		log.Error("failed to record attempt", sl.Err(err))
		return models.User{}, models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
	}

	payload := claims.Payload
	username, _ = a.classifier.Normalize(username)
	if payload.Username != username {
		log.Info("username does not match temporary token")
		return models.User{}, models.AuthTokens{}, ErrInvalidCode
	}

	user, err := a.usrProvider.UserByID(ctx, claims.Subject)
	if err != nil {
		log.Warn("failed to load token subject", sl.Err(err))
		return models.User{}, models.AuthTokens{}, ErrInvalidCode
	}

	switch payload.LoginType {
	case models.LoginEmail, models.LoginMobile:
		if !a.tokens.CodeMatches(claims, code) {
			log.Info("verification code mismatch", slog.String("uid", user.ID))
			return models.User{}, models.AuthTokens{}, ErrInvalidCode
		}
	case models.LoginPassword:
		if !passwordMatches(user, code) {
			log.Info("password mismatch", slog.String("uid", user.ID))
			return models.User{}, models.AuthTokens{}, ErrInvalidCode
		}
	default:
		return models.User{}, models.AuthTokens{}, ErrInvalidCode
	}

	if _, err := a.tokens.Consume(ctx, token, models.TokenTemporary); err != nil {
		if errors.Is(err, tokens.ErrRevoked) {
			return models.User{}, models.AuthTokens{}, ErrInvalidCode
		}

		log.Error("failed to consume temporary token", sl.Err(err))
		return models.User{}, models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
	}

	switch payload.LoginType {
	case models.LoginEmail:
		if err := a.usrSaver.SetEmailVerified(ctx, user.ID); err != nil {
			log.Error("failed to set email verified", sl.Err(err))
			return models.User{}, models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
		}
		user.IsEmailVerified = true
	case models.LoginMobile:
		if err := a.usrSaver.SetMobileVerified(ctx, user.ID); err != nil {
			log.Error("failed to set mobile verified", sl.Err(err))
			return models.User{}, models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
		}
		user.IsMobileVerified = true
	}

	pair, err := a.tokens.IssueAuthTokens(ctx, user.ID, a.ttl.Access, a.ttl.Refresh)
	if err != nil {
		log.Error("failed to issue auth tokens", sl.Err(err))
		return models.User{}, models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("code verified", slog.String("uid", user.ID))

	return user, pair, nil
}

// PasswordLogin checks a username/password pair.
func (a *Auth) PasswordLogin(ctx context.Context, username, password string) (models.User, error) {
	const op = "auth.PasswordLogin"

	log := a.log.With(slog.String("op", op))

	username, loginType := a.classifier.Normalize(username)

	user, err := a.lookupUser(ctx, username, loginType)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found")
			return models.User{}, ErrIncorrectCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if !passwordMatches(user, password) {
		log.Info("invalid credentials", slog.String("uid", user.ID))
		return models.User{}, ErrIncorrectCredentials
	}

	return user, nil
}

// * Login проверяет учетные данные и возвращает пару токенов
func (a *Auth) Login(ctx context.Context, username, password string) (models.User, models.AuthTokens, error) {
	const op = "auth.Login"

	user, err := a.PasswordLogin(ctx, username, password)
	if err != nil {
		return models.User{}, models.AuthTokens{}, err
	}

	pair, err := a.tokens.IssueAuthTokens(ctx, user.ID, a.ttl.Access, a.ttl.Refresh)
	if err != nil {
		a.log.Error("failed to issue auth tokens", slog.String("op", op), sl.Err(err))
		return models.User{}, models.AuthTokens{}, fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("user logged in successfully", slog.String("op", op), slog.String("uid", user.ID))

	return user, pair, nil
}

func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if _, err := a.tokens.Find(ctx, refreshToken, models.TokenRefresh); err != nil {
		if errors.Is(err, tokens.ErrRevoked) {
			log.Info("refresh token not found")
			return ErrNotFound
		}

		log.Error("failed to find refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokens.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, tokens.ErrRevoked) {
			return ErrNotFound
		}

		log.Error("failed to delete refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful")

	return nil
}

// Refresh rotates a refresh token. Every failure is reported as
// ErrPleaseAuthenticate.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (models.AuthTokens, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(ctx, refreshToken, models.TokenRefresh)
	if err != nil {
		log.Info("refresh token rejected", sl.Err(err))
		return models.AuthTokens{}, ErrPleaseAuthenticate
	}

	user, err := a.usrProvider.UserByID(ctx, claims.Subject)
	if err != nil {
		log.Warn("failed to load user", sl.Err(err))
		return models.AuthTokens{}, ErrPleaseAuthenticate
	}

	if err := a.tokens.Revoke(ctx, refreshToken); err != nil {
		log.Warn("failed to revoke refresh token", sl.Err(err))
		return models.AuthTokens{}, ErrPleaseAuthenticate
	}

	pair, err := a.tokens.IssueAuthTokens(ctx, user.ID, a.ttl.Access, a.ttl.Refresh)
	if err != nil {
		log.Error("failed to issue auth tokens", sl.Err(err))
		return models.AuthTokens{}, ErrPleaseAuthenticate
	}

	log.Info("refresh successful", slog.String("uid", user.ID))

	return pair, nil
}

// * ForgotPassword выдает токен сброса пароля и отправляет ссылку на почту
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	email, _ = a.classifier.Normalize(email)

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrNoUserWithEmail
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := a.tokens.Issue(ctx, user.ID, models.TokenResetPassword, a.ttl.ResetPassword)
	if err != nil {
		log.Error("failed to issue reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := models.Message{
		To:      email,
		Purpose: models.PurposeResetPassword,
		Link:    link(a.links.ResetPassword, token.Token),
	}

	if err := a.notifier.SendEmail(ctx, msg); err != nil {
		log.Error("failed to send reset password email", sl.Err(err))
	}

	return nil
}

// ResetPassword sets a new password and invalidates every outstanding reset
// token of the user.
func (a *Auth) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(ctx, resetToken, models.TokenResetPassword)
	if err != nil {
		log.Info("reset token rejected", sl.Err(err))
		return ErrPasswordResetFailed
	}

	user, err := a.usrProvider.UserByID(ctx, claims.Subject)
	if err != nil {
		log.Warn("failed to load user", sl.Err(err))
		return ErrPasswordResetFailed
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return ErrPasswordResetFailed
	}

	if err := a.usrSaver.UpdatePassword(ctx, user.ID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return ErrPasswordResetFailed
	}

	if _, err := a.tokens.RevokeAll(ctx, user.ID, models.TokenResetPassword); err != nil {
		log.Error("failed to delete reset tokens", sl.Err(err))
		return ErrPasswordResetFailed
	}

	log.Info("password reset", slog.String("uid", user.ID))

	return nil
}

// * SendVerificationEmail отправляет ссылку подтверждения почты
func (a *Auth) SendVerificationEmail(ctx context.Context, userID string) error {
	const op = "auth.SendVerificationEmail"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrPleaseAuthenticate
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.Email == "" {
		return ErrNoEmailAddress
	}

	token, err := a.tokens.Issue(ctx, user.ID, models.TokenVerifyEmail, a.ttl.VerifyEmail)
	if err != nil {
		log.Error("failed to issue verify email token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := models.Message{
		To:      user.Email,
		Purpose: models.PurposeVerifyEmail,
		Link:    link(a.links.VerifyEmail, token.Token),
	}

	if err := a.notifier.SendEmail(ctx, msg); err != nil {
		log.Error("failed to send verification link", sl.Err(err))
	}

	return nil
}

// VerifyEmail marks the email verified and invalidates every outstanding
// verify-email token of the user.
func (a *Auth) VerifyEmail(ctx context.Context, verifyToken string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(ctx, verifyToken, models.TokenVerifyEmail)
	if err != nil {
		log.Info("verify email token rejected", sl.Err(err))
		return ErrEmailVerificationFailed
	}

	user, err := a.usrProvider.UserByID(ctx, claims.Subject)
	if err != nil {
		log.Warn("failed to load user", sl.Err(err))
		return ErrEmailVerificationFailed
	}

	if _, err := a.tokens.RevokeAll(ctx, user.ID, models.TokenVerifyEmail); err != nil {
		log.Error("failed to delete verify email tokens", sl.Err(err))
		return ErrEmailVerificationFailed
	}

	if err := a.usrSaver.SetEmailVerified(ctx, user.ID); err != nil {
		log.Error("failed to set email verified", sl.Err(err))
		return ErrEmailVerificationFailed
	}

	log.Info("email verified", slog.String("uid", user.ID))

	return nil
}

// Authenticate resolves the user behind an access token.
func (a *Auth) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	const op = "auth.Authenticate"

	claims, err := a.tokens.Verify(ctx, accessToken, models.TokenAccess)
	if err != nil {
		return models.User{}, ErrPleaseAuthenticate
	}

	user, err := a.usrProvider.UserByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			a.log.Error("failed to load user", slog.String("op", op), sl.Err(err))
		}
		return models.User{}, ErrPleaseAuthenticate
	}

	return user, nil
}

func (a *Auth) lookupUser(ctx context.Context, username string, loginType models.LoginType) (models.User, error) {
	switch loginType {
	case models.LoginEmail:
		return a.usrProvider.UserByEmail(ctx, username)
	case models.LoginMobile:
		return a.usrProvider.UserByMobile(ctx, username)
	default:
		return a.usrProvider.UserByUsername(ctx, username)
	}
}

// resolveUser looks the user up and, for email and mobile identifiers, creates
// it on first sight.
func (a *Auth) resolveUser(ctx context.Context, username string, loginType models.LoginType) (models.User, error) {
	user, err := a.lookupUser(ctx, username, loginType)
	if err == nil || !errors.Is(err, storage.ErrUserNotFound) || loginType == models.LoginPassword {
		return user, err
	}

	newUser := models.User{}
	if loginType == models.LoginEmail {
		newUser.Email = username
	} else {
		newUser.Mobile = username
	}

	user, err = a.usrSaver.CreateUser(ctx, newUser)
	if errors.Is(err, storage.ErrUserExists) {
		// lost a creation race, the other request's user wins
		return a.lookupUser(ctx, username, loginType)
	}

	return user, err
}

// link appends token to base as the token query parameter, keeping any query
// the base already carries.
func link(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String()
}

func passwordMatches(user models.User, password string) bool {
	if len(user.PassHash) == 0 {
		return false
	}

	return bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)) == nil
}
