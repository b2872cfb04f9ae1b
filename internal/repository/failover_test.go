package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyRepo struct {
	failing   bool
	rateCalls int
	pollCalls int
}

func (f *flakyRepo) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	f.rateCalls++
	if f.failing {
		return false, errors.New("connection refused")
	}
	return true, nil
}

func (f *flakyRepo) SetLastPoll(context.Context, string, time.Time) error {
	f.pollCalls++
	if f.failing {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakyRepo) GetLastPoll(context.Context, string) (time.Time, error) {
	f.pollCalls++
	if f.failing {
		return time.Time{}, errors.New("connection refused")
	}
	return time.Time{}, nil
}

func TestFailover_FallsBackWhenPrimaryFails(t *testing.T) {
	logger := zerolog.Nop()
	primary := &flakyRepo{failing: true}
	fallback := NewMemoryClientStateRepository(time.Hour)
	repo := NewFailoverClientStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	cursor := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetLastPoll(ctx, "client-1", cursor))

	got, err := repo.GetLastPoll(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(cursor), "state served from the fallback store")

	// The primary is marked down after the first failure and not probed
	// again within the cooldown.
	assert.Equal(t, 1, primary.pollCalls)
}

func TestFailover_UsesPrimaryWhileHealthy(t *testing.T) {
	logger := zerolog.Nop()
	primary := &flakyRepo{}
	fallback := NewMemoryClientStateRepository(time.Hour)
	repo := NewFailoverClientStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	allowed, err := repo.CheckRateLimit(ctx, "client-1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, primary.rateCalls)
}

func TestMemoryRateLimit(t *testing.T) {
	repo := NewMemoryClientStateRepository(time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := repo.CheckRateLimit(ctx, "client-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := repo.CheckRateLimit(ctx, "client-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestMemoryLastPoll(t *testing.T) {
	repo := NewMemoryClientStateRepository(time.Hour)
	ctx := context.Background()

	got, err := repo.GetLastPoll(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	cursor := time.Now()
	require.NoError(t, repo.SetLastPoll(ctx, "client-1", cursor))

	got, err = repo.GetLastPoll(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(cursor))
}
