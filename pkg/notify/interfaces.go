// Package notify delivers best-effort outcome events to the notification layer.
package notify

import (
	"context"
)

// Gateway defines the interface for publishing outcome events. Delivery is best effort:
// a failed publish never affects the settlement it describes.
type Gateway interface {
	Publish(ctx context.Context, event Event) error
}
