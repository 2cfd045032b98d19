package transition

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidTarget       = errors.New("invalid target status")
	ErrOrderNotFound       = errors.New("order not found in working set")
	ErrUnknownRequest      = errors.New("unknown transition request")
	ErrDeliveryBoyRequired = errors.New("delivery boy must be selected before marking ready")
	ErrDeliveryBoyNotTaken = errors.New("transition does not take a delivery boy")
	ErrUnknownDeliveryBoy  = errors.New("selected delivery boy is not available")
	ErrTransitionInFlight  = errors.New("a transition for this order is already in flight")
)

// Commander issues the status-change command upstream. Implemented by
// orders.CommandClient.
type Commander interface {
	Transition(orderID int64, status models.OrderStatus, deliveryBoyID int64) error
}

// WorkingSet is the slice of the feed reconciler the controller mutates after
// a confirmed transition.
type WorkingSet interface {
	Get(id int64) (models.Order, bool)
	SetStatus(id int64, status models.OrderStatus) bool
	Remove(id int64) bool
}

// BoyDirectory exposes the assignable delivery boys from the lookup tables.
type BoyDirectory interface {
	DeliveryBoys() []models.DeliveryBoy
	DeliveryBoy(id int64) (models.DeliveryBoy, bool)
}

// Recorder appends successful transitions to the audit log.
type Recorder interface {
	Record(orderID int64, from, to models.OrderStatus, deliveryBoyID int64, actor string) error
}

// Request is one pending, operator-visible transition. It exists between
// Begin and Confirm/Cancel and holds the extra input the ready transition
// needs.
type Request struct {
	ID            string               `json:"id"`
	OrderID       int64                `json:"order_id"`
	Target        models.OrderStatus   `json:"target"`
	NeedsBoy      bool                 `json:"needs_delivery_boy"`
	DeliveryBoyID int64                `json:"delivery_boy_id,omitempty"`
	DeliveryBoys  []models.DeliveryBoy `json:"delivery_boys,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Controller validates and executes order status changes. Every transition is
// two-phase: Begin creates a pending request (exposing the delivery-boy
// choices for ready, or a plain confirmation gate otherwise) and Confirm
// issues the upstream command. Per order id at most one command is in flight;
// a second attempt is rejected instead of queued.
type Controller struct {
	commander Commander
	set       WorkingSet
	boys      BoyDirectory
	recorder  Recorder
	actor     string
	logger    *logrus.Logger

	mu       sync.Mutex
	pending  map[string]*Request
	inflight map[int64]bool
}

func NewController(commander Commander, set WorkingSet, boys BoyDirectory, recorder Recorder, actor string, logger *logrus.Logger) *Controller {
	return &Controller{
		commander: commander,
		set:       set,
		boys:      boys,
		recorder:  recorder,
		actor:     actor,
		logger:    logger,
		pending:   make(map[string]*Request),
		inflight:  make(map[int64]bool),
	}
}

// Begin opens a pending request for the given order and target status. The
// order's current status is deliberately not checked here: upstream enforces
// the machine and re-sending an applied transition is safe.
func (c *Controller) Begin(orderID int64, target models.OrderStatus) (*Request, error) {
	if !target.Valid() || target == models.StatusPending {
		return nil, ErrInvalidTarget
	}
	if _, ok := c.set.Get(orderID); !ok {
		return nil, ErrOrderNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[orderID] {
		return nil, ErrTransitionInFlight
	}

	req := &Request{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Target:    target,
		CreatedAt: time.Now(),
	}
	if target == models.StatusReady {
		req.NeedsBoy = true
		req.DeliveryBoys = c.boys.DeliveryBoys()
	}
	c.pending[req.ID] = req

	c.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"target":     target,
		"request_id": req.ID,
	}).Info("Transition request opened")

	return req, nil
}

// SelectDeliveryBoy records the operator's choice on a pending ready request.
// Requests for any other target reject the selection so a stray id can never
// ride along on the upstream command.
func (c *Controller) SelectDeliveryBoy(requestID string, boyID int64) error {
	if _, ok := c.boys.DeliveryBoy(boyID); !ok {
		return ErrUnknownDeliveryBoy
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[requestID]
	if !ok {
		return ErrUnknownRequest
	}
	if !req.NeedsBoy {
		return ErrDeliveryBoyNotTaken
	}
	req.DeliveryBoyID = boyID
	return nil
}

// Cancel drops a pending request without any upstream call. The order is left
// untouched.
func (c *Controller) Cancel(requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[requestID]; !ok {
		return ErrUnknownRequest
	}
	delete(c.pending, requestID)
	return nil
}

// Confirm executes a pending request. A ready request without a selected
// delivery boy is rejected before any command is issued. On success a
// terminal target removes the order from the working set and anything else
// updates the status in place; on failure local state is left unchanged and
// the upstream error is returned for the operator.
func (c *Controller) Confirm(requestID string) error {
	c.mu.Lock()
	req, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownRequest
	}
	if req.NeedsBoy && req.DeliveryBoyID == 0 {
		c.mu.Unlock()
		return ErrDeliveryBoyRequired
	}
	if c.inflight[req.OrderID] {
		c.mu.Unlock()
		return ErrTransitionInFlight
	}
	delete(c.pending, requestID)
	c.inflight[req.OrderID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, req.OrderID)
		c.mu.Unlock()
	}()

	if req.NeedsBoy {
		// The record could have been deleted between selection and confirm.
		if _, ok := c.boys.DeliveryBoy(req.DeliveryBoyID); !ok {
			return ErrUnknownDeliveryBoy
		}
	}

	before, _ := c.set.Get(req.OrderID)

	if err := c.commander.Transition(req.OrderID, req.Target, req.DeliveryBoyID); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"order_id": req.OrderID,
			"target":   req.Target,
		}).Warn("Transition failed, local state unchanged")
		return err
	}

	if req.Target.Terminal() {
		c.set.Remove(req.OrderID)
	} else {
		c.set.SetStatus(req.OrderID, req.Target)
	}

	if c.recorder != nil {
		if err := c.recorder.Record(req.OrderID, before.Status, req.Target, req.DeliveryBoyID, c.actor); err != nil {
			c.logger.WithError(err).Warn("Failed to record transition in audit log")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": req.OrderID,
		"from":     before.Status,
		"to":       req.Target,
	}).Info("Transition applied")

	return nil
}

// Pending returns a pending request by id.
func (c *Controller) Pending(requestID string) (*Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[requestID]
	return req, ok
}
