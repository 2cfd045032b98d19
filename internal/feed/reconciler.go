package feed

import (
	"sync"

	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// Reconciler merges the one-time order snapshot with live push events into a
// single deduplicated working set, keyed by order id. It is the source of
// truth for what is currently actionable on the operations board.
//
// The push loop and the HTTP handlers share one Reconciler, so all access is
// guarded by the mutex.
type Reconciler struct {
	mu     sync.RWMutex
	orders map[int64]models.Order
	logger *logrus.Logger
}

// PushResult describes what a single push event did to the working set.
type PushResult struct {
	// New is true when the event introduced an id that was not present and
	// carries a non-terminal status. Only these events notify the operator.
	New bool
	// Updated is true when the event overwrote an order already in the set.
	Updated bool
	// Removed is true when a terminal status deleted the id from the set.
	Removed bool
}

func NewReconciler(logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		orders: make(map[int64]models.Order),
		logger: logger,
	}
}

// ApplySnapshot replaces the working set with the given orders. Later
// duplicates of an id win; terminal entries are dropped on the way in so a
// stale snapshot row can never surface.
func (r *Reconciler) ApplySnapshot(orders []models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = make(map[int64]models.Order, len(orders))
	for _, o := range orders {
		if o.Status.Terminal() {
			continue
		}
		r.orders[o.ID] = o
	}

	r.logger.WithField("count", len(r.orders)).Info("Order snapshot applied")
}

// ApplyPush reconciles one live event. A terminal status is a removal signal:
// the id is deleted from the map rather than overwritten, so a late duplicate
// push cannot resurrect a finished order. Anything else is an upsert,
// last write wins.
func (r *Reconciler) ApplyPush(o models.Order) PushResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.Status.Terminal() {
		if _, ok := r.orders[o.ID]; ok {
			delete(r.orders, o.ID)
			r.logger.WithFields(logrus.Fields{
				"order_id": o.ID,
				"status":   o.Status,
			}).Info("Order removed from working set")
			return PushResult{Removed: true}
		}
		return PushResult{}
	}

	_, known := r.orders[o.ID]
	r.orders[o.ID] = o

	return PushResult{New: !known, Updated: known}
}

// Get returns the current value for an order id.
func (r *Reconciler) Get(id int64) (models.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	return o, ok
}

// SetStatus updates an order's status in place after a confirmed non-terminal
// transition. It reports whether the id was present.
func (r *Reconciler) SetStatus(id int64, status models.OrderStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false
	}
	o.Status = status
	r.orders[id] = o
	return true
}

// Remove drops an order after a confirmed terminal transition.
func (r *Reconciler) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return false
	}
	delete(r.orders, id)
	return true
}

// Len returns the working set size.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
