// Package idempotency detects transfers whose (reference, kind) already settled.
package idempotency

import (
	"context"
	"fmt"
	"sync"

	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// Guard answers "has this reference settled?" from the ledger, keeps an optional cache in front of
// it, and serializes concurrent attempts for the same key inside the process.
type Guard struct {
	ledger storage.LedgerReader
	cache  Cache
	logg   *logger.Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewGuard builds a guard. cache may be nil.
func NewGuard(ledger storage.LedgerReader, cache Cache, logg *logger.Logger) *Guard {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Guard{
		ledger:   ledger,
		cache:    cache,
		logg:     logg,
		inflight: make(map[string]chan struct{}),
	}
}

// CheckAndReserve returns the recorded result when ref already settled. Otherwise it reserves ref
// for the caller, who must call release when done. A caller that finds ref reserved waits for the
// holder to release it and checks again.
func (g *Guard) CheckAndReserve(ctx context.Context, ref models.Reference) (settled bool, prior *models.TransferResult, release func(), err error) {
	key := ref.Key()
	for {
		found, result, lookupErr := g.Lookup(ctx, ref)
		if lookupErr != nil {
			return false, nil, nil, lookupErr
		}
		if found {
			return true, result, nil, nil
		}

		g.mu.Lock()
		wait, busy := g.inflight[key]
		if !busy {
			done := make(chan struct{})
			g.inflight[key] = done
			g.mu.Unlock()

			var once sync.Once
			return false, nil, func() {
				once.Do(func() {
					g.mu.Lock()
					delete(g.inflight, key)
					g.mu.Unlock()
					close(done)
				})
			}, nil
		}
		g.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return false, nil, nil, ctx.Err()
		}
	}
}

// Lookup checks the cache, then the ledger, without reserving anything.
func (g *Guard) Lookup(ctx context.Context, ref models.Reference) (bool, *models.TransferResult, error) {
	key := ref.Key()

	if g.cache != nil {
		cached, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logg.Warn(g.logg.WithField(ctx, "reference", key), fmt.Sprintf("idempotency cache unavailable: %v", err))
		} else if ok {
			return true, cached, nil
		}
	}

	entries, err := g.ledger.FindByReference(ctx, ref.ID, ref.Kind)
	if err != nil {
		return false, nil, fmt.Errorf("failed to look up reference %s: %w", key, err)
	}
	if len(entries) == 0 {
		return false, nil, nil
	}

	result, err := models.ResultFromEntries(entries)
	if err != nil {
		return false, nil, fmt.Errorf("ledger entries for %s are inconsistent: %w", key, err)
	}
	g.Remember(ctx, ref, result)
	return true, result, nil
}

// Remember stores a ledger-confirmed result in the cache. Flags describing how the original call
// went are cleared so cached and ledger-rebuilt results look the same.
func (g *Guard) Remember(ctx context.Context, ref models.Reference, result *models.TransferResult) {
	if g.cache == nil || result == nil {
		return
	}
	stored := *result
	stored.Replayed = false
	stored.Deferred = false
	if err := g.cache.Put(ctx, ref.Key(), &stored); err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "reference", ref.Key()), fmt.Sprintf("failed to cache settled result: %v", err))
	}
}
