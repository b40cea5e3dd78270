package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the fast path in front of the ledger. It only ever holds results the ledger has
// confirmed, so a hit never contradicts the ledger and a miss always falls through to it.
type Cache interface {
	Get(ctx context.Context, key string) (*models.TransferResult, bool, error)
	Put(ctx context.Context, key string, result *models.TransferResult) error
}

// MemoryCache is a bounded in-process cache with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, models.TransferResult]
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache builds a cache holding at most size results for ttl each. A zero ttl disables expiry.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 10000
	}
	return &MemoryCache{lru: expirable.NewLRU[string, models.TransferResult](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*models.TransferResult, bool, error) {
	result, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return &result, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, result *models.TransferResult) error {
	c.lru.Add(key, *result)
	return nil
}

// redisStore defines the operations used by RedisCache.
type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	IdempotencyKey(reference string) string
}

// RedisCache shares settled results between instances as JSON values with a TTL.
type RedisCache struct {
	store redisStore
	ttl   time.Duration
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(store redisStore, ttl time.Duration) (*RedisCache, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &RedisCache{store: store, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.TransferResult, bool, error) {
	raw, err := c.store.Get(ctx, c.store.IdempotencyKey(key))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached result: %w", err)
	}
	var result models.TransferResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, result *models.TransferResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.store.Set(ctx, c.store.IdempotencyKey(key), payload, c.ttl); err != nil {
		return fmt.Errorf("write cached result: %w", err)
	}
	return nil
}
