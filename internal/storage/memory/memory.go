package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"code_auth/internal/models"
	"code_auth/internal/storage"
)

// Storage keeps users and tokens in process memory. It backs the "memory"
// storage driver used for local runs and tests.
type Storage struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]models.User
	tokens map[string]models.Token
	now    func() time.Time
}

func New() *Storage {
	return &Storage{
		users:  make(map[string]models.User),
		tokens: make(map[string]models.Token),
		now:    time.Now,
	}
}

func (s *Storage) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.memory.CreateUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if (user.Email != "" && u.Email == user.Email) ||
			(user.Mobile != "" && u.Mobile == user.Mobile) ||
			(user.Username != "" && u.Username == user.Username) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
	}

	s.nextID++
	user.ID = strconv.FormatInt(s.nextID, 10)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}

	s.users[user.ID] = user

	return user, nil
}

func (s *Storage) UserByID(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == email })
}

func (s *Storage) UserByMobile(ctx context.Context, mobile string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Mobile == mobile })
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Username == username })
}

func (s *Storage) SetEmailVerified(ctx context.Context, id string) error {
	return s.update(id, func(u *models.User) { u.IsEmailVerified = true })
}

func (s *Storage) SetMobileVerified(ctx context.Context, id string) error {
	return s.update(id, func(u *models.User) { u.IsMobileVerified = true })
}

func (s *Storage) UpdatePassword(ctx context.Context, id string, passHash []byte) error {
	return s.update(id, func(u *models.User) { u.PassHash = passHash })
}

func (s *Storage) SaveToken(ctx context.Context, token models.Token) error {
	const op = "storage.memory.SaveToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.Value]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
	}

	s.tokens[token.Value] = token

	return nil
}

func (s *Storage) Token(ctx context.Context, value string) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[value]
	if !ok {
		return models.Token{}, storage.ErrTokenNotFound
	}

	return t, nil
}

func (s *Storage) DeleteToken(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[value]; !ok {
		return storage.ErrTokenNotFound
	}

	delete(s.tokens, value)

	return nil
}

func (s *Storage) DeleteUserTokens(ctx context.Context, userID string, typ models.TokenType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.UserID == userID && t.Type == typ {
			delete(s.tokens, k)
			n++
		}
	}

	return n, nil
}

func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var n int64
	for k, t := range s.tokens {
		if t.IsExpired(now) {
			delete(s.tokens, k)
			n++
		}
	}

	return n, nil
}

func (s *Storage) find(match func(models.User) bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *Storage) update(id string, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	fn(&u)
	s.users[id] = u

	return nil
}
