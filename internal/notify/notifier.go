package notify

import (
	"fmt"

	"github.com/opsdeck/order-console/internal/ws"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// Notifier is the side-channel that tells the operator about feed activity.
// Every method is best-effort: notification failures are logged and never
// propagate into the feed loop.
type Notifier interface {
	// NewOrder fires the toast and audible alert for a newly observed order.
	NewOrder(o models.Order)
	// OrderUpdated re-renders the status badge for a known order, silently.
	OrderUpdated(o models.Order)
	// FeedDegraded shows the degraded-mode indicator after the live channel
	// exhausts its reconnect ceiling.
	FeedDegraded(reason string)
}

// Broadcaster is the slice of the ws hub the notifier uses.
type Broadcaster interface {
	Broadcast(messageType string, data interface{}, playAlert bool)
}

// HubNotifier pushes notifications to connected dashboard browsers. The
// audible alert is a flag on the message; actual playback happens in the
// browser and its failures stay there.
type HubNotifier struct {
	hub    Broadcaster
	logger *logrus.Logger
}

func NewHubNotifier(hub Broadcaster, logger *logrus.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

func (n *HubNotifier) NewOrder(o models.Order) {
	defer n.recover("new order")
	n.logger.WithField("order_id", o.ID).Info("New order notification")
	n.hub.Broadcast(ws.TypeNewOrder, map[string]interface{}{
		"order_id": o.ID,
		"message":  fmt.Sprintf("New order #%d received", o.ID),
		"order":    o,
	}, true)
}

func (n *HubNotifier) OrderUpdated(o models.Order) {
	defer n.recover("order updated")
	n.hub.Broadcast(ws.TypeOrderUpdated, map[string]interface{}{
		"order_id": o.ID,
		"status":   o.Status,
	}, false)
}

func (n *HubNotifier) FeedDegraded(reason string) {
	defer n.recover("feed degraded")
	n.logger.WithField("reason", reason).Warn("Live feed degraded")
	n.hub.Broadcast(ws.TypeFeedDegraded, map[string]interface{}{
		"reason": reason,
	}, false)
}

func (n *HubNotifier) recover(what string) {
	if r := recover(); r != nil {
		n.logger.WithField("panic", r).Errorf("Failed to deliver %s notification", what)
	}
}
