package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	usedTokenPrefix = "token:used:"
	attemptsPrefix  = "token:attempts:"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// * MarkTokenUsed помечает токен как использованный (атомарно через SETNX)
// Возвращает true если токен был использован первый раз
// Возвращает false если токен уже был использован ранее
func (r *RedisRepo) MarkTokenUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	const op = "storage.redis.MarkTokenUsed"

	success, err := r.client.SetNX(ctx, usedTokenPrefix+tokenID, "used", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return success, nil
}

// * CountAttempt увеличивает счётчик попыток для токена
// TTL выставляется при первой попытке, чтобы счётчик жил не дольше токена
func (r *RedisRepo) CountAttempt(ctx context.Context, tokenID string, ttl time.Duration) (int64, error) {
	const op = "storage.redis.CountAttempt"

	key := attemptsPrefix + tokenID

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return incr.Val(), nil
}

// * Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	r.client.Close()
}
