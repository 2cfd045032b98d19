package models

import (
	"time"
)

// OrderStatus is the lifecycle state of an order on the operations board.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusViewed    OrderStatus = "viewed"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCanceled  OrderStatus = "canceled"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusViewed, StatusReady, StatusDelivered, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether an order in this status has left the active board.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// CanTransitionTo reports whether the status machine allows s -> target.
// Forward path is pending -> viewed -> ready -> delivered; canceled is
// reachable from any non-terminal status.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch target {
	case StatusViewed:
		return s == StatusPending
	case StatusReady:
		return s == StatusViewed
	case StatusDelivered:
		return s == StatusReady
	case StatusCanceled:
		return true
	default:
		return false
	}
}

type Order struct {
	ID            int64       `json:"id"`
	CustomerName  string      `json:"customer_name"`
	Phone         string      `json:"phone"`
	CityID        int64       `json:"city_id"`
	ZoneID        int64       `json:"zone_id"`
	Address       string      `json:"address"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"total_amount"`
	PaymentMethod string      `json:"payment_method"`
	PaymentStatus string      `json:"payment_status"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

type OrderItem struct {
	ProductSKU string  `json:"product_sku"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

// OrderListResponse is the upstream platform's order query envelope.
type OrderListResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Orders  []Order `json:"orders"`
	Count   int     `json:"count"`
}

// TransitionRequest is the upstream command payload for a status change.
type TransitionRequest struct {
	Status        OrderStatus `json:"status"`
	DeliveryBoyID int64       `json:"delivery_boy_id,omitempty"`
}

// TransitionResponse is the upstream command result envelope.
type TransitionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Order   *Order `json:"order,omitempty"`
}

const (
	// EventNewOrder is the live-channel message type for an order upsert.
	EventNewOrder = "new-order"
)

// OrderEvent is a single push from the live order channel. The payload is a
// full order record; a terminal status is treated as a removal signal.
type OrderEvent struct {
	Type      string    `json:"type"`
	Order     Order     `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
