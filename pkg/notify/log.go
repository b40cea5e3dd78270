package notify

import (
	"context"
	"fmt"

	"github.com/mycotrack/wallet-ledger/pkg/logger"
)

// LogGateway writes events to the structured log. It is the default when no queue is configured.
type LogGateway struct {
	logg *logger.Logger
}

var _ Gateway = (*LogGateway)(nil)

func NewLogGateway(logg *logger.Logger) *LogGateway {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogGateway{logg: logg}
}

func (g *LogGateway) Publish(ctx context.Context, event Event) error {
	ctx = g.logg.WithFields(ctx, map[string]any{
		"event_type": string(event.Type),
		"payload":    event.Payload,
	})
	g.logg.Info(ctx, fmt.Sprintf("event %s", event.Type))
	return nil
}

// NoOp discards every event.
type NoOp struct{}

var _ Gateway = NoOp{}

func (NoOp) Publish(context.Context, Event) error { return nil }
