package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// MemoryCache is the in-process Cache used when no Redis URL is configured.
// Expired entries are dropped lazily on access.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) SetJobStatus(ctx context.Context, snap models.JobSnapshot, ttl time.Duration) error {
	return setJobStatus(ctx, c, snap, ttl)
}

func (c *MemoryCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (models.JobSnapshot, bool, error) {
	return getJobStatus(ctx, c, jobID)
}

// IncrWithExpiry mirrors the Redis pipeline: increment, then refresh the expiry.
func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	if item, ok := c.live(key); ok {
		n, _ = strconv.ParseInt(string(item.value), 10, 64)
	}
	n++
	c.items[key] = memoryItem{value: []byte(strconv.FormatInt(n, 10)), expiresAt: c.expiry(expiry)}
	return n, nil
}

// live must be called with mu held.
func (c *MemoryCache) live(key string) (memoryItem, bool) {
	item, ok := c.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}
