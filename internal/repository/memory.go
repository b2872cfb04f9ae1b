package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryClientStateRepository is the in-process fallback for client poll
// state when redis is unavailable.
type MemoryClientStateRepository struct {
	lastPolls  sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemoryClientStateRepository(ttl time.Duration) *MemoryClientStateRepository {
	return &MemoryClientStateRepository{ttl: ttl}
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryClientStateRepository) CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, _ := r.rateLimits.LoadOrStore(clientID, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++

	return entry.count <= limit, nil
}

func (r *MemoryClientStateRepository) SetLastPoll(ctx context.Context, clientID string, cursor time.Time) error {
	r.lastPolls.Store(clientID, cursor)
	return nil
}

func (r *MemoryClientStateRepository) GetLastPoll(ctx context.Context, clientID string) (time.Time, error) {
	val, ok := r.lastPolls.Load(clientID)
	if !ok {
		return time.Time{}, nil
	}
	return val.(time.Time), nil
}
