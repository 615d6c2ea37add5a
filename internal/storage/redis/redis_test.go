package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*RedisRepo, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	repo, err := New(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	return repo, mr
}

func TestMarkTokenUsed_FirstUseOnly(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	first, err := repo.MarkTokenUsed(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkTokenUsed(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := repo.MarkTokenUsed(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMarkTokenUsed_ExpiresWithTTL(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()

	_, err := repo.MarkTokenUsed(ctx, "jti-1", time.Minute)
	require.NoError(t, err)

	assert.True(t, mr.Exists(usedTokenPrefix+"jti-1"))

	mr.FastForward(2 * time.Minute)

	assert.False(t, mr.Exists(usedTokenPrefix+"jti-1"))

	first, err := repo.MarkTokenUsed(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestCountAttempt(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := repo.CountAttempt(ctx, "jti-1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := repo.CountAttempt(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// later calls must not push the expiry out
	mr.FastForward(40 * time.Second)
	_, err = repo.CountAttempt(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	mr.FastForward(30 * time.Second)

	assert.False(t, mr.Exists(attemptsPrefix+"jti-1"))

	n, err = repo.CountAttempt(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestNew_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New(context.Background(), addr, "", 0)
	require.Error(t, err)
}
