package capacity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Snapshot is a point-in-time view of occupancy counts keyed by resource
// value (slot label or ISO date). It is a hint, never authoritative.
type Snapshot struct {
	Counts    map[string]int `json:"counts"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// Count returns the occupancy recorded for value.
func (s Snapshot) Count(value string) int {
	return s.Counts[value]
}

// Cache stores snapshots per form id.
type Cache interface {
	Get(ctx context.Context, formID string) (Snapshot, bool, error)
	Set(ctx context.Context, formID string, snap Snapshot) error
}

// MemoryCache keeps snapshots in process for ttl.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]Snapshot
}

// NewMemoryCache returns an in-process cache. A zero ttl keeps entries until
// they are replaced.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, items: make(map[string]Snapshot)}
}

func (m *MemoryCache) Get(_ context.Context, formID string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.items[formID]
	if !ok {
		return Snapshot{}, false, nil
	}
	if m.ttl > 0 && m.now().Sub(snap.FetchedAt) > m.ttl {
		return Snapshot{}, false, nil
	}
	return cloneSnapshot(snap), true, nil
}

func (m *MemoryCache) Set(_ context.Context, formID string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[formID] = cloneSnapshot(snap)
	return nil
}

const redisKeyPrefix = "formengine:capacity:"

// RedisCache shares snapshots between sessions through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("capacity: connect redis %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisCache) Get(ctx context.Context, formID string) (Snapshot, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+formID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("capacity: redis get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("capacity: decode cached snapshot: %w", err)
	}
	return snap, true, nil
}

func (r *RedisCache) Set(ctx context.Context, formID string, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("capacity: encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+formID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("capacity: redis set: %w", err)
	}
	return nil
}

func cloneSnapshot(snap Snapshot) Snapshot {
	counts := make(map[string]int, len(snap.Counts))
	for k, v := range snap.Counts {
		counts[k] = v
	}
	return Snapshot{Counts: counts, FetchedAt: snap.FetchedAt}
}
