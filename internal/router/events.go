package router

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names.
const (
	EventJoinOrderRoom       = "join_order_room"
	EventLeaveOrderRoom      = "leave_order_room"
	EventDriverLocation      = "driver_location_update"
	EventPaymentConfirm      = "payment_confirm"
	EventSubscribeOrders     = "subscribe_to_orders"
	EventSubscribeDeliveries = "subscribe_to_deliveries"
	EventPing                = "ping"
)

// Outbound event names.
const (
	EventJoinedRoom        = "joined_room"
	EventOrderStatusUpdate = "order_status_update"
	EventPaymentUpdate     = "payment_update"
	EventDriverAssigned    = "driver_assigned"
	EventPaymentConfirmAck = "payment_confirm_ack"
	EventPong              = "pong"
	EventError             = "error"
)

// ClientMessage is the inbound frame shape.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ClientResponse is the outbound frame shape.
type ClientResponse struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// ErrInvalidPayload tags every payload validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is the sealed set of routable events. Each variant carries its own
// typed fields and knows how to validate them; nothing reaches fan-out
// without passing Validate.
type Payload interface {
	EventType() string
	// RoomID is the order id the event is routed on.
	RoomID() string
	Validate() error
}

// LocationUpdate is a GPS ping from a delivery driver.
type LocationUpdate struct {
	OrderID  string   `json:"orderId"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

func (p *LocationUpdate) EventType() string { return EventDriverLocation }
func (p *LocationUpdate) RoomID() string    { return p.OrderID }

func (p *LocationUpdate) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: orderId is required", ErrInvalidPayload)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of range [-90, 90]", ErrInvalidPayload, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: lng %v out of range [-180, 180]", ErrInvalidPayload, p.Lng)
	}
	if p.Speed != nil && *p.Speed < 0 {
		return fmt.Errorf("%w: speed must be non-negative", ErrInvalidPayload)
	}
	if p.Heading != nil && (*p.Heading < 0 || *p.Heading >= 360) {
		return fmt.Errorf("%w: heading %v out of range [0, 360)", ErrInvalidPayload, *p.Heading)
	}
	if p.Accuracy != nil && *p.Accuracy < 0 {
		return fmt.Errorf("%w: accuracy must be non-negative", ErrInvalidPayload)
	}
	return nil
}

// Payment methods accepted on a payment_confirm.
const (
	PaymentMethodCard   = "card"
	PaymentMethodCash   = "cash"
	PaymentMethodWallet = "wallet"
)

// PaymentConfirm is a payment handshake from a customer connection.
type PaymentConfirm struct {
	OrderID   string  `json:"orderId"`
	Method    string  `json:"method"`
	Confirmed *bool   `json:"confirmed"`
	Amount    float64 `json:"amount"`
}

func (p *PaymentConfirm) EventType() string { return EventPaymentUpdate }
func (p *PaymentConfirm) RoomID() string    { return p.OrderID }

func (p *PaymentConfirm) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: orderId is required", ErrInvalidPayload)
	}
	switch p.Method {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodWallet:
	default:
		return fmt.Errorf("%w: unknown payment method '%s'", ErrInvalidPayload, p.Method)
	}
	if p.Confirmed == nil {
		return fmt.Errorf("%w: confirmed flag is required", ErrInvalidPayload)
	}
	if p.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidPayload)
	}
	return nil
}

// OrderStatusUpdate announces a committed status change. Raised by the order
// CRUD path, never by a connected member.
type OrderStatusUpdate struct {
	OrderID string
	Status  string
	Extra   map[string]any
}

func (p *OrderStatusUpdate) EventType() string { return EventOrderStatusUpdate }
func (p *OrderStatusUpdate) RoomID() string    { return p.OrderID }

func (p *OrderStatusUpdate) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: orderId is required", ErrInvalidPayload)
	}
	if p.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidPayload)
	}
	return nil
}

// PaymentNotice announces payment state committed by business logic.
type PaymentNotice struct {
	OrderID string
	Fields  map[string]any
}

func (p *PaymentNotice) EventType() string { return EventPaymentUpdate }
func (p *PaymentNotice) RoomID() string    { return p.OrderID }

func (p *PaymentNotice) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: orderId is required", ErrInvalidPayload)
	}
	return nil
}

// DriverAssigned announces that a driver was matched to an order.
type DriverAssigned struct {
	OrderID string
	Driver  map[string]any
}

func (p *DriverAssigned) EventType() string { return EventDriverAssigned }
func (p *DriverAssigned) RoomID() string    { return p.OrderID }

func (p *DriverAssigned) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: orderId is required", ErrInvalidPayload)
	}
	if len(p.Driver) == 0 {
		return fmt.Errorf("%w: driver info is required", ErrInvalidPayload)
	}
	return nil
}

// adminVisible reports whether an event type is mirrored to the admin group
// in addition to its room. Admin dashboards watch all orders; location pings
// and payment traffic stay room-scoped.
func adminVisible(eventType string) bool {
	switch eventType {
	case EventOrderStatusUpdate, EventDriverAssigned:
		return true
	}
	return false
}
