// Package storagetest holds the behaviour every storage driver has to share,
// so the memory, mongo and postgres drivers are checked by the same tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code_auth/internal/models"
	"code_auth/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Store interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByMobile(ctx context.Context, mobile string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	SetEmailVerified(ctx context.Context, id string) error
	SetMobileVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passHash []byte) error

	SaveToken(ctx context.Context, token models.Token) error
	Token(ctx context.Context, value string) (models.Token, error)
	DeleteToken(ctx context.Context, value string) error
	DeleteUserTokens(ctx context.Context, userID string, typ models.TokenType) (int64, error)
}

// Run runs the shared driver tests. newStore must hand back an empty store
// for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("CreateUser_Duplicates", func(t *testing.T) {
		testCreateUserDuplicates(t, newStore(t))
	})
	t.Run("CreateUser_EmptyIdentifiers", func(t *testing.T) {
		testEmptyIdentifiers(t, newStore(t))
	})
	t.Run("UserLookups", func(t *testing.T) {
		testUserLookups(t, newStore(t))
	})
	t.Run("UserUpdates", func(t *testing.T) {
		testUserUpdates(t, newStore(t))
	})
	t.Run("TokenRoundTrip", func(t *testing.T) {
		testTokenRoundTrip(t, newStore(t))
	})
	t.Run("DeleteToken_SingleUse", func(t *testing.T) {
		testDeleteTokenSingleUse(t, newStore(t))
	})
	t.Run("DeleteToken_Concurrent", func(t *testing.T) {
		testDeleteTokenConcurrent(t, newStore(t))
	})
	t.Run("DeleteUserTokens", func(t *testing.T) {
		testDeleteUserTokens(t, newStore(t))
	})
}

func testCreateUserDuplicates(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{
		Email:    "a@x.com",
		Mobile:   "09121234567",
		Username: "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	for _, dup := range []models.User{
		{Email: "a@x.com"},
		{Mobile: "09121234567"},
		{Username: "alice"},
	} {
		_, err = s.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrUserExists, "%+v", dup)
	}
}

func testEmptyIdentifiers(t *testing.T, s Store) {
	ctx := context.Background()

	a, err := s.CreateUser(ctx, models.User{Mobile: "09121234567"})
	require.NoError(t, err)
	b, err := s.CreateUser(ctx, models.User{Mobile: "09121234568"})
	require.NoError(t, err)
	c, err := s.CreateUser(ctx, models.User{Email: "c@x.com"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, b.ID, c.ID)

	got, err := s.UserByMobile(ctx, "09121234567")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Empty(t, got.Email)
	assert.Empty(t, got.Username)
}

func testUserLookups(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{
		Email:    "a@x.com",
		Mobile:   "09121234567",
		Username: "alice",
		PassHash: []byte("hash"),
	})
	require.NoError(t, err)

	lookups := map[string]func() (models.User, error){
		"id":       func() (models.User, error) { return s.UserByID(ctx, u.ID) },
		"email":    func() (models.User, error) { return s.UserByEmail(ctx, "a@x.com") },
		"mobile":   func() (models.User, error) { return s.UserByMobile(ctx, "09121234567") },
		"username": func() (models.User, error) { return s.UserByUsername(ctx, "alice") },
	}

	for name, lookup := range lookups {
		got, err := lookup()
		require.NoError(t, err, name)
		assert.Equal(t, u.ID, got.ID, name)
		assert.Equal(t, "a@x.com", got.Email, name)
		assert.Equal(t, "09121234567", got.Mobile, name)
		assert.Equal(t, "alice", got.Username, name)
		assert.Equal(t, []byte("hash"), got.PassHash, name)
		assert.False(t, got.IsEmailVerified, name)
		assert.False(t, got.IsMobileVerified, name)
	}

	_, err = s.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	_, err = s.UserByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	_, err = s.UserByMobile(ctx, "09120000000")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	_, err = s.UserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func testUserUpdates(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, s.SetEmailVerified(ctx, u.ID))
	require.NoError(t, s.SetMobileVerified(ctx, u.ID))
	require.NoError(t, s.UpdatePassword(ctx, u.ID, []byte("new-hash")))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEmailVerified)
	assert.True(t, got.IsMobileVerified)
	assert.Equal(t, []byte("new-hash"), got.PassHash)

	assert.ErrorIs(t, s.SetEmailVerified(ctx, "missing"), storage.ErrUserNotFound)
	assert.ErrorIs(t, s.SetMobileVerified(ctx, "missing"), storage.ErrUserNotFound)
	assert.ErrorIs(t, s.UpdatePassword(ctx, "missing", []byte("x")), storage.ErrUserNotFound)
}

func testTokenRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{Email: "a@x.com"})
	require.NoError(t, err)

	want := models.Token{
		Value:       "refresh-1",
		UserID:      u.ID,
		Type:        models.TokenRefresh,
		ExpiresAt:   expiresIn(time.Hour),
		Blacklisted: true,
	}
	require.NoError(t, s.SaveToken(ctx, want))

	got, err := s.Token(ctx, want.Value)
	require.NoError(t, err)
	assert.Equal(t, want.Value, got.Value)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Blacklisted, got.Blacklisted)
	assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Millisecond)

	assert.ErrorIs(t, s.SaveToken(ctx, want), storage.ErrTokenExists)

	_, err = s.Token(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func testDeleteTokenSingleUse(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, s.SaveToken(ctx, models.Token{
		Value:     "refresh-1",
		UserID:    u.ID,
		Type:      models.TokenRefresh,
		ExpiresAt: expiresIn(time.Hour),
	}))

	require.NoError(t, s.DeleteToken(ctx, "refresh-1"))
	assert.ErrorIs(t, s.DeleteToken(ctx, "refresh-1"), storage.ErrTokenNotFound)

	_, err = s.Token(ctx, "refresh-1")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	assert.ErrorIs(t, s.DeleteToken(ctx, "never-saved"), storage.ErrTokenNotFound)
}

func testDeleteTokenConcurrent(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, s.SaveToken(ctx, models.Token{
		Value:     "refresh-1",
		UserID:    u.ID,
		Type:      models.TokenRefresh,
		ExpiresAt: expiresIn(time.Hour),
	}))

	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		notFound int
		other    []error
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.DeleteToken(ctx, "refresh-1")

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				ok++
			case errors.Is(err, storage.ErrTokenNotFound):
				notFound++
			default:
				other = append(other, err)
			}
		}()
	}

	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, notFound)
}

func testDeleteUserTokens(t *testing.T, s Store) {
	ctx := context.Background()

	u1, err := s.CreateUser(ctx, models.User{Email: "a@x.com"})
	require.NoError(t, err)
	u2, err := s.CreateUser(ctx, models.User{Email: "b@x.com"})
	require.NoError(t, err)

	tokens := []models.Token{
		{Value: "p1", UserID: u1.ID, Type: models.TokenResetPassword},
		{Value: "p2", UserID: u1.ID, Type: models.TokenResetPassword},
		{Value: "r1", UserID: u1.ID, Type: models.TokenRefresh},
		{Value: "p3", UserID: u2.ID, Type: models.TokenResetPassword},
	}
	for _, tok := range tokens {
		tok.ExpiresAt = expiresIn(time.Hour)
		require.NoError(t, s.SaveToken(ctx, tok))
	}

	n, err := s.DeleteUserTokens(ctx, u1.ID, models.TokenResetPassword)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, gone := range []string{"p1", "p2"} {
		_, err = s.Token(ctx, gone)
		assert.ErrorIs(t, err, storage.ErrTokenNotFound, gone)
	}

	for _, kept := range []string{"r1", "p3"} {
		_, err = s.Token(ctx, kept)
		assert.NoError(t, err, kept)
	}

	n, err = s.DeleteUserTokens(ctx, u1.ID, models.TokenResetPassword)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// expiresIn is rounded to what every driver can store without loss.
func expiresIn(d time.Duration) time.Time {
	return time.Now().Add(d).UTC().Truncate(time.Millisecond)
}
