// Package scheduler hands transfers to a queue for asynchronous settlement.
package scheduler

import (
	"context"

	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

// Scheduler defines the interface for a component that schedules a transfer for later settlement.
type Scheduler interface {
	// ScheduleTransfer enqueues a transfer request. Settlement happens when a consumer runs it
	// through the coordinator, so retries of the same reference stay idempotent.
	ScheduleTransfer(ctx context.Context, req *transfer.Request) error
}
