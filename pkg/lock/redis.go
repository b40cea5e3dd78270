package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
)

const (
	defaultTTL          = 30 * time.Second
	defaultPollInterval = 25 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

// redisStore defines the operations used by Redis.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, owner string) (bool, error)
	LockKey(accountID string) string
}

// Redis coordinates account locks across instances with SET NX PX and an owner token.
// The TTL bounds how long a crashed holder can block an account.
type Redis struct {
	client       redisStore
	ttl          time.Duration
	pollInterval time.Duration
	logg         *logger.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis constructs a Redis-backed locker.
func NewRedis(client redisStore, ttl, pollInterval time.Duration, logg *logger.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Redis{client: client, ttl: ttl, pollInterval: pollInterval, logg: logg}, nil
}

func (r *Redis) LockAll(ctx context.Context, ids ...string) (func(), error) {
	owner := uuid.NewString()
	keys := sortedUnique(ids)
	held := make([]string, 0, len(keys))

	for _, id := range keys {
		key := r.client.LockKey(id)
		if err := r.acquire(ctx, key, owner); err != nil {
			r.releaseAll(ctx, held, owner)
			return nil, err
		}
		held = append(held, key)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		r.releaseAll(ctx, held, owner)
	}, nil
}

func (r *Redis) acquire(ctx context.Context, key, owner string) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, owner, r.ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// releaseAll runs detached from the caller's cancellation so a cancelled request still frees its locks.
func (r *Redis) releaseAll(ctx context.Context, keys []string, owner string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		ok, err := r.client.CompareAndDelete(releaseCtx, keys[i], owner)
		if err != nil {
			r.logg.Error(r.logg.WithField(ctx, "lock_key", keys[i]), "failed to release account lock", err)
			continue
		}
		if !ok {
			r.logg.Warn(r.logg.WithField(ctx, "lock_key", keys[i]), "account lock expired before release")
		}
	}
}
