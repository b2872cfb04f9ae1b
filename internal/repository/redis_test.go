package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRepo(t *testing.T) (*RedisClientStateRepository, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisClientStateRepository(client, time.Hour), mr
}

func TestRedisCheckRateLimit(t *testing.T) {
	repo, mr := setupRedisRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := repo.CheckRateLimit(ctx, "client-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, err := repo.CheckRateLimit(ctx, "client-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request exceeds the limit")

	// Another client has its own counter.
	allowed, err = repo.CheckRateLimit(ctx, "client-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// The window expiring resets the counter.
	mr.FastForward(2 * time.Minute)
	allowed, err = repo.CheckRateLimit(ctx, "client-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLastPollRoundTrip(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	ctx := context.Background()

	got, err := repo.GetLastPoll(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "unknown client has no cursor")

	cursor := time.Date(2025, 6, 2, 10, 0, 0, 123456789, time.UTC)
	require.NoError(t, repo.SetLastPoll(ctx, "client-1", cursor))

	got, err = repo.GetLastPoll(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, cursor.UnixNano(), got.UnixNano(), "cursor round-trips to the nanosecond")
}

func TestRedisNilClient(t *testing.T) {
	repo := NewRedisClientStateRepository(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.CheckRateLimit(ctx, "client-1", 1, time.Minute)
	assert.Error(t, err)
	assert.Error(t, repo.SetLastPoll(ctx, "client-1", time.Now()))
	_, err = repo.GetLastPoll(ctx, "client-1")
	assert.Error(t, err)
}
