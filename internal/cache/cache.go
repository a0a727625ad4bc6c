// Package cache implements C3, the per-user short-TTL cache of profile and
// recent memory, adapted from the teacher repo's internal/session.Manager
// (local map + Redis backing, explicit invalidation, LRU eviction of the
// local map).
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/metrics"
	"github.com/dorianinnovations/Server/internal/models"
)

// Entry is the cached value for one user: profile plus their recent memory,
// stamped with the time it was fetched.
type Entry struct {
	Profile      map[string]string       `json:"profile"`
	RecentMemory []models.MemoryMessage  `json:"recentMemory"`
	FetchedAt    time.Time               `json:"fetchedAt"`
}

// Loader fetches a fresh Entry on a cache miss.
type Loader func(ctx context.Context, userID uuid.UUID) (*Entry, error)

// Cache is safe for concurrent Get/Invalidate. Duplicate concurrent loads for
// the same key may both run; spec.md calls single-flight a quality
// improvement, not a correctness requirement, so this implementation omits it.
type Cache struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	mu          sync.RWMutex
	local       map[uuid.UUID]*Entry
	lastAccess  map[uuid.UUID]time.Time
	maxLocal    int
}

// New creates a Cache. redisClient may be nil, in which case the cache is
// purely local to this process.
func New(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		redis:      redisClient,
		logger:     logger,
		ttl:        ttl,
		local:      make(map[uuid.UUID]*Entry),
		lastAccess: make(map[uuid.UUID]time.Time),
		maxLocal:   10000,
	}
}

// Get returns the cached entry if its age is below the TTL; otherwise it
// calls load, caches the result, and returns it.
func (c *Cache) Get(ctx context.Context, userID uuid.UUID, load Loader) (*Entry, error) {
	if e, ok := c.getFresh(userID); ok {
		metrics.CacheHits.Inc()
		return e, nil
	}

	if e, ok := c.getFromRedis(ctx, userID); ok {
		c.storeLocal(userID, e)
		metrics.CacheHits.Inc()
		return e, nil
	}

	metrics.CacheMisses.Inc()
	e, err := load(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.FetchedAt = time.Now()
	c.storeLocal(userID, e)
	c.storeRedis(ctx, userID, e)
	return e, nil
}

func (c *Cache) getFresh(userID uuid.UUID) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.local[userID]
	if !ok || time.Since(e.FetchedAt) >= c.ttl {
		return nil, false
	}
	c.lastAccess[userID] = time.Now()
	return e, true
}

func (c *Cache) getFromRedis(ctx context.Context, userID uuid.UUID) (*Entry, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, redisKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if time.Since(e.FetchedAt) >= c.ttl {
		return nil, false
	}
	return &e, true
}

func (c *Cache) storeLocal(userID uuid.UUID, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[userID] = e
	c.lastAccess[userID] = time.Now()
	c.evictLocked()
}

func (c *Cache) storeRedis(ctx context.Context, userID uuid.UUID, e *Entry) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKey(userID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("user cache redis set failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// evictLocked drops the least-recently-accessed entries once the local map
// exceeds maxLocal. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	if len(c.local) <= c.maxLocal {
		return
	}
	var oldestID uuid.UUID
	var oldestAt time.Time
	first := true
	for id, t := range c.lastAccess {
		if first || t.Before(oldestAt) {
			oldestID, oldestAt, first = id, t, false
		}
	}
	if !first {
		delete(c.local, oldestID)
		delete(c.lastAccess, oldestID)
	}
}

// Invalidate removes the cached entry for userID from both the local map
// and the shared Redis backing, called by the committer after any write
// that changes profile or memory.
func (c *Cache) Invalidate(ctx context.Context, userID uuid.UUID) {
	c.mu.Lock()
	delete(c.local, userID)
	delete(c.lastAccess, userID)
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKey(userID)).Err(); err != nil {
			c.logger.Warn("user cache redis invalidate failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}

func redisKey(userID uuid.UUID) string {
	return "user_cache:" + userID.String()
}
