package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoKey is returned by Counter reads when the key is absent or expired.
var ErrNoKey = errors.New("cache: no such key")

// Counter is a keyed counter with per-key TTL. Increment is atomic with
// respect to concurrent callers and refreshes the expiry on every call
// (rolling window). Implementations back the login/registration throttles
// and the course-completion email dedupe marker.
type Counter interface {
	// Increment adds 1 to the counter at key, (re)setting its TTL, and
	// returns the new value.
	Increment(key string, ttl time.Duration) (int64, error)
	// Get returns the current counter value, or 0 with ErrNoKey.
	Get(key string) (int64, error)
	// TTL returns the remaining lifetime of key, or ErrNoKey.
	TTL(key string) (time.Duration, error)
	// SetNX stores value at key only if the key does not exist. Returns
	// true when the key was newly created.
	SetNX(key, value string, ttl time.Duration) (bool, error)
	// Set unconditionally stores value at key with the given TTL.
	Set(key, value string, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(keys ...string) error
}

type redisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter returns a Counter backed by the shared Redis client.
func NewRedisCounter(rdb *redis.Client) Counter {
	return &redisCounter{rdb: rdb}
}

func (c *redisCounter) Increment(key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *redisCounter) Get(key string) (int64, error) {
	val, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoKey
	}
	return val, err
}

func (c *redisCounter) TTL(key string) (time.Duration, error) {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, ErrNoKey
	}
	return ttl, nil
}

func (c *redisCounter) SetNX(key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *redisCounter) Set(key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisCounter) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

type memoryEntry struct {
	count     int64
	value     string
	expiresAt time.Time
}

// MemoryCounter is an in-process Counter used in tests and as a degraded
// fallback when no cache server is reachable.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryCounter returns an empty in-memory Counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source; tests use this to expire keys.
func (c *MemoryCounter) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCounter) live(key string) *memoryEntry {
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return e
}

func (c *MemoryCounter) Increment(key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		e = &memoryEntry{}
		c.entries[key] = e
	}
	e.count++
	e.expiresAt = c.now().Add(ttl)
	return e.count, nil
}

func (c *MemoryCounter) Get(key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		return 0, ErrNoKey
	}
	return e.count, nil
}

func (c *MemoryCounter) TTL(key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		return 0, ErrNoKey
	}
	return e.expiresAt.Sub(c.now()), nil
}

func (c *MemoryCounter) SetNX(key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live(key) != nil {
		return false, nil
	}
	c.entries[key] = &memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *MemoryCounter) Set(key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCounter) Delete(keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}
