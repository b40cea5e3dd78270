// Package lock provides per-account mutual exclusion for balance transfers.
package lock

import (
	"context"
	"slices"
)

// Locker grants exclusive ownership of a set of accounts.
type Locker interface {
	// LockAll blocks until every id is held or ctx is done. Ids are acquired in sorted order so two
	// callers locking overlapping sets can never deadlock. On failure nothing stays held.
	LockAll(ctx context.Context, ids ...string) (unlock func(), err error)
}

// sortedUnique returns the ids in acquisition order with duplicates removed.
func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
