package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"salonflow/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisClientStateRepository keeps per-API-client poll state in redis:
// rate-limit counters and the last cursor each client acknowledged.
type RedisClientStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisClientStateRepository(client *redis.Client, ttl time.Duration) *RedisClientStateRepository {
	return &RedisClientStateRepository{client: client, ttl: ttl}
}

func (r *RedisClientStateRepository) CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	key := fmt.Sprintf("rate_limit:%s", clientID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// SetLastPoll stores the cursor a client last acknowledged, as unix
// nanoseconds for exact round-tripping.
func (r *RedisClientStateRepository) SetLastPoll(ctx context.Context, clientID string, cursor time.Time) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	key := fmt.Sprintf("last_poll:%s", clientID)
	if err := r.client.Set(ctx, key, strconv.FormatInt(cursor.UnixNano(), 10), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set last poll cursor: %w", err)
	}
	return nil
}

// GetLastPoll returns the zero time when the client has no stored cursor.
func (r *RedisClientStateRepository) GetLastPoll(ctx context.Context, clientID string) (time.Time, error) {
	if r.client == nil {
		return time.Time{}, errors.New("redis client is nil")
	}
	key := fmt.Sprintf("last_poll:%s", clientID)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last poll cursor: %w", err)
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last poll cursor: %w", err)
	}
	return time.Unix(0, nanos), nil
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
