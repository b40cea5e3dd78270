package notify

import (
	"context"
	"sync"
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/logger"
)

const publishTimeout = 5 * time.Second

// Async decouples callers from a slow or failing gateway. Publish only enqueues; a single
// background worker delivers. When the buffer is full the event is dropped and logged.
type Async struct {
	next   Gateway
	logg   *logger.Logger
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

var _ Gateway = (*Async)(nil)

// NewAsync starts the delivery worker. Call Close to flush and stop it.
func NewAsync(next Gateway, buffer int, logg *logger.Logger) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	a := &Async{
		next:   next,
		logg:   logg,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish never blocks. The caller's context only contributes log fields.
func (a *Async) Publish(ctx context.Context, event Event) (err error) {
	defer func() {
		// Publishing after Close sends on a closed channel.
		if recover() != nil {
			a.logg.Warn(ctx, "notification dropped after shutdown")
			err = nil
		}
	}()

	select {
	case a.events <- event:
	default:
		a.logg.Warn(a.logg.WithField(ctx, "event_type", string(event.Type)), "notification buffer full, dropping event")
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := a.next.Publish(ctx, event); err != nil {
			a.logg.Error(a.logg.WithField(ctx, "event_type", string(event.Type)), "failed to publish notification", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffered ones are delivered or ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { close(a.events) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
