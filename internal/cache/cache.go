package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, snap models.JobSnapshot, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (models.JobSnapshot, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Close() error
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, snap models.JobSnapshot, ttl time.Duration) error {
	return setJobStatus(ctx, c, snap, ttl)
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (models.JobSnapshot, bool, error) {
	return getJobStatus(ctx, c, jobID)
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Job snapshots are stored as JSON under JobStatusKey by every implementation.

func setJobStatus(ctx context.Context, c Cache, snap models.JobSnapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode job snapshot: %w", err)
	}
	return c.Set(ctx, JobStatusKey(snap.ID), raw, ttl)
}

func getJobStatus(ctx context.Context, c Cache, jobID uuid.UUID) (models.JobSnapshot, bool, error) {
	raw, found, err := c.Get(ctx, JobStatusKey(jobID))
	if err != nil || !found {
		return models.JobSnapshot{}, false, err
	}
	var snap models.JobSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.JobSnapshot{}, false, fmt.Errorf("decode job snapshot: %w", err)
	}
	return snap, true, nil
}
