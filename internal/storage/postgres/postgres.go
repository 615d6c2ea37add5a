package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code_auth/internal/config"
	"code_auth/internal/models"
	"code_auth/internal/storage"
	"code_auth/internal/storage/postgres/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.Postgres) (*PostgresRepo, error) {
	return Connect(ctx, dsn(cfg))
}

// Connect opens a pool on connString, pings it and applies the migrations.
func Connect(ctx context.Context, connString string) (*PostgresRepo, error) {
	const op = "storage.postgres.Connect"

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// * migrate применяет встроенные миграции goose
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (r *PostgresRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users (id, email, mobile, username, password_hash, is_email_verified, is_mobile_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at;
	`

	user.ID = uuid.NewString()

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		nullable(user.Email),
		nullable(user.Mobile),
		nullable(user.Username),
		user.PassHash,
		user.IsEmailVerified,
		user.IsMobileVerified,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return user, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, storage.ErrUserNotFound
	}

	return r.user(ctx, "storage.postgres.UserByID", "id", id)
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.user(ctx, "storage.postgres.UserByEmail", "email", email)
}

func (r *PostgresRepo) UserByMobile(ctx context.Context, mobile string) (models.User, error) {
	return r.user(ctx, "storage.postgres.UserByMobile", "mobile", mobile)
}

func (r *PostgresRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.user(ctx, "storage.postgres.UserByUsername", "username", username)
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET is_email_verified = TRUE WHERE id = $1`

	return r.updateUser(ctx, "storage.postgres.SetEmailVerified", query, id)
}

func (r *PostgresRepo) SetMobileVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET is_mobile_verified = TRUE WHERE id = $1`

	return r.updateUser(ctx, "storage.postgres.SetMobileVerified", query, id)
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, id string, passHash []byte) error {
	query := `UPDATE users SET password_hash = $2 WHERE id = $1`

	return r.updateUser(ctx, "storage.postgres.UpdatePassword", query, id, passHash)
}

func (r *PostgresRepo) SaveToken(ctx context.Context, token models.Token) error {
	const op = "storage.postgres.SaveToken"

	const query = `
		INSERT INTO tokens (token, user_id, type, expires_at, blacklisted)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		token.Value,
		token.UserID,
		string(token.Type),
		token.ExpiresAt,
		token.Blacklisted,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) Token(ctx context.Context, value string) (models.Token, error) {
	const op = "storage.postgres.Token"

	const query = `
		SELECT token, user_id::text, type, expires_at, blacklisted
		FROM tokens
		WHERE token = $1;
	`

	var (
		t   models.Token
		typ string
	)

	err := r.pool.QueryRow(ctx, query, value).Scan(
		&t.Value,
		&t.UserID,
		&typ,
		&t.ExpiresAt,
		&t.Blacklisted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, storage.ErrTokenNotFound
		}

		return models.Token{}, fmt.Errorf("%s: %w", op, err)
	}

	t.Type = models.TokenType(typ)

	return t, nil
}

func (r *PostgresRepo) DeleteToken(ctx context.Context, value string) error {
	const op = "storage.postgres.DeleteToken"

	query := `DELETE FROM tokens WHERE token = $1`

	tag, err := r.pool.Exec(ctx, query, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrTokenNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteUserTokens(ctx context.Context, userID string, typ models.TokenType) (int64, error) {
	const op = "storage.postgres.DeleteUserTokens"

	if _, err := uuid.Parse(userID); err != nil {
		return 0, nil
	}

	query := `DELETE FROM tokens WHERE user_id = $1 AND type = $2`

	tag, err := r.pool.Exec(ctx, query, userID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `DELETE FROM tokens WHERE expires_at <= NOW()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) user(ctx context.Context, op, column, value string) (models.User, error) {
	// column comes from the fixed set above, never from input
	query := fmt.Sprintf(`
		SELECT id::text, COALESCE(email, ''), COALESCE(mobile, ''), COALESCE(username, ''),
		       password_hash, is_email_verified, is_mobile_verified, created_at
		FROM users
		WHERE %s = $1;
	`, column)

	var u models.User

	err := r.pool.QueryRow(ctx, query, value).Scan(
		&u.ID,
		&u.Email,
		&u.Mobile,
		&u.Username,
		&u.PassHash,
		&u.IsEmailVerified,
		&u.IsMobileVerified,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) updateUser(ctx context.Context, op, query, id string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrUserNotFound
	}

	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// * nullable превращает пустую строку в NULL, чтобы не нарушать уникальность
func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}
