package stream

import (
	"context"

	"github.com/opsdeck/order-console/pkg/models"
)

// Source is the live order channel. Run blocks until the context is
// cancelled, delivering events on Events; the channel is closed when Run
// returns so the apply loop can drain and stop.
//
// Delivery is at-most-once: events missed while disconnected are never
// replayed. Implementations signal a successful reconnect so the owner can
// re-fetch the snapshot to close the gap.
type Source interface {
	Events() <-chan models.OrderEvent
	Run(ctx context.Context) error
}
