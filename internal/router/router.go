// Package router receives typed events from connected members or from
// internal business logic, validates them, and fans the enriched envelope out
// to the correct room and group.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state"
	"github.com/tidwall/gjson"
)

type EventRouter struct {
	logger       *slog.Logger
	stateManager state.Manager

	// mu serializes submissions. The member snapshot and the buffered,
	// non-blocking sends all happen inside it, so members of one room see
	// events in submission-acceptance order. No ordering is promised
	// across rooms.
	mu sync.Mutex
}

func NewEventRouter(logger *slog.Logger, stateManager state.Manager) *EventRouter {
	return &EventRouter{
		logger:       logger.With(slog.String("component", "event_router")),
		stateManager: stateManager,
	}
}

// HandleMessage is the transport's inbound callback for one client frame.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	conn, ok := r.stateManager.Get(connID)
	if !ok {
		// Disconnect raced the message; nothing to reply to.
		return
	}

	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		r.sendError(conn, "malformed message")
		return
	}

	switch clientMsg.Event {
	case EventPing:
		r.send(conn, EventPong, map[string]any{"timestamp": time.Now().UTC()})

	case EventJoinOrderRoom:
		r.handleJoinRoom(conn, clientMsg.Payload)

	case EventLeaveOrderRoom:
		r.handleLeaveRoom(conn, clientMsg.Payload)

	case EventSubscribeOrders:
		r.handleSubscribeOrders(conn, clientMsg.Payload)

	case EventSubscribeDeliveries:
		if err := r.stateManager.JoinGroup(conn.ID, state.GroupAdmin); err != nil {
			r.sendError(conn, "subscription failed")
		}

	case EventDriverLocation:
		var p LocationUpdate
		if err := json.Unmarshal(clientMsg.Payload, &p); err != nil {
			r.sendError(conn, "malformed driver_location_update payload")
			return
		}
		if err := r.Submit(&p, conn); err != nil {
			r.sendError(conn, err.Error())
		}

	case EventPaymentConfirm:
		var p PaymentConfirm
		if err := json.Unmarshal(clientMsg.Payload, &p); err != nil {
			r.sendError(conn, "malformed payment_confirm payload")
			return
		}
		if err := r.Submit(&p, conn); err != nil {
			r.sendError(conn, err.Error())
			return
		}
		r.send(conn, EventPaymentConfirmAck, map[string]any{"orderId": p.OrderID, "success": true})

	default:
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		r.sendError(conn, "unknown event '"+clientMsg.Event+"'")
	}
}

func (r *EventRouter) handleJoinRoom(conn *state.Connection, payload json.RawMessage) {
	orderID := gjson.GetBytes(payload, "orderId").String()
	if orderID == "" {
		r.sendError(conn, "join_order_room requires an orderId")
		return
	}
	if err := r.stateManager.JoinRoom(conn.ID, orderID); err != nil {
		r.sendError(conn, "failed to join room")
		return
	}
	r.send(conn, EventJoinedRoom, map[string]any{"orderId": orderID})
}

func (r *EventRouter) handleLeaveRoom(conn *state.Connection, payload json.RawMessage) {
	orderID := gjson.GetBytes(payload, "orderId").String()
	if orderID == "" {
		r.sendError(conn, "leave_order_room requires an orderId")
		return
	}
	if err := r.stateManager.LeaveRoom(conn.ID, orderID); err != nil {
		r.sendError(conn, "failed to leave room")
	}
}

func (r *EventRouter) handleSubscribeOrders(conn *state.Connection, payload json.RawMessage) {
	customerID := gjson.GetBytes(payload, "customerId").String()
	if customerID == "" {
		r.sendError(conn, "subscribe_to_orders requires a customerId")
		return
	}
	if err := r.stateManager.JoinGroup(conn.ID, state.GroupCustomer); err != nil {
		r.sendError(conn, "subscription failed")
		return
	}
	r.logger.Debug("Customer subscribed to order updates",
		slog.String("connID", conn.ID.String()),
		slog.String("customerId", customerID),
	)
}

// Submit validates a payload and fans the enriched envelope out to the
// event's room, and additionally to the admin group for admin-visible types.
// source is nil for events raised by internal business logic. A validation
// failure produces zero fan-out.
func (r *EventRouter) Submit(p Payload, source *state.Connection) error {
	if err := p.Validate(); err != nil {
		r.logger.Warn("Rejected event payload",
			slog.String("event", p.EventType()),
			slog.Any("error", err),
		)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := json.Marshal(ClientResponse{
		Event:   p.EventType(),
		Payload: buildEnvelope(p, source, time.Now().UTC()),
	})
	if err != nil {
		return err
	}

	// Room-scoped delivery. An empty or unknown room is a valid no-op.
	delivered := make(map[uuid.UUID]struct{})
	for _, member := range r.stateManager.RoomMembers(p.RoomID()) {
		delivered[member.ID] = struct{}{}
		// Best effort; a member that disconnected or stalled mid fan-out
		// just misses the frame.
		member.Transport.Send(frame)
	}

	if adminVisible(p.EventType()) {
		for _, admin := range r.stateManager.GroupMembers(state.GroupAdmin) {
			if _, seen := delivered[admin.ID]; seen {
				continue
			}
			admin.Transport.Send(frame)
		}
	}

	r.logger.Debug("Event routed",
		slog.String("event", p.EventType()),
		slog.String("orderID", p.RoomID()),
		slog.Int("recipients", len(delivered)),
	)
	return nil
}

// --- Internal seam for the CRUD layer ---

// NotifyOrderStatus announces a committed order status change to the order's
// room and the admin feed.
func (r *EventRouter) NotifyOrderStatus(orderID, status string, extra map[string]any) error {
	return r.Submit(&OrderStatusUpdate{OrderID: orderID, Status: status, Extra: extra}, nil)
}

// NotifyPaymentUpdate announces committed payment state to the order's room.
func (r *EventRouter) NotifyPaymentUpdate(orderID string, fields map[string]any) error {
	return r.Submit(&PaymentNotice{OrderID: orderID, Fields: fields}, nil)
}

// NotifyDriverAssigned announces a driver match to the order's room and the
// admin feed.
func (r *EventRouter) NotifyDriverAssigned(orderID string, driver map[string]any) error {
	return r.Submit(&DriverAssigned{OrderID: orderID, Driver: driver}, nil)
}

// --- Envelope construction ---

type subjectRef struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

func refFor(source *state.Connection) *subjectRef {
	if source == nil {
		return nil
	}
	return &subjectRef{ID: source.Subject, Email: source.Email}
}

// buildEnvelope enriches a validated payload with the server timestamp and,
// for member-submitted events, an echo of the submitting subject identity.
func buildEnvelope(p Payload, source *state.Connection, now time.Time) any {
	switch p := p.(type) {
	case *LocationUpdate:
		location := map[string]any{"lat": p.Lat, "lng": p.Lng}
		if p.Speed != nil {
			location["speed"] = *p.Speed
		}
		if p.Heading != nil {
			location["heading"] = *p.Heading
		}
		envelope := map[string]any{
			"orderId":   p.OrderID,
			"location":  location,
			"timestamp": now,
		}
		if ref := refFor(source); ref != nil {
			envelope["driver"] = ref
		}
		return envelope

	case *PaymentConfirm:
		envelope := map[string]any{
			"orderId":   p.OrderID,
			"method":    p.Method,
			"confirmed": *p.Confirmed,
			"amount":    p.Amount,
			"timestamp": now,
		}
		if ref := refFor(source); ref != nil {
			envelope["customer"] = ref
		}
		return envelope

	case *OrderStatusUpdate:
		envelope := make(map[string]any, len(p.Extra)+3)
		for k, v := range p.Extra {
			envelope[k] = v
		}
		// Routing fields win over anything in Extra.
		envelope["orderId"] = p.OrderID
		envelope["status"] = p.Status
		envelope["timestamp"] = now
		return envelope

	case *PaymentNotice:
		envelope := make(map[string]any, len(p.Fields)+2)
		for k, v := range p.Fields {
			envelope[k] = v
		}
		envelope["orderId"] = p.OrderID
		envelope["timestamp"] = now
		return envelope

	case *DriverAssigned:
		return map[string]any{
			"orderId":   p.OrderID,
			"driver":    p.Driver,
			"timestamp": now,
		}
	}
	// Unreachable: Payload is sealed to the cases above.
	return nil
}

// --- Per-connection replies ---

func (r *EventRouter) send(conn *state.Connection, event string, payload any) {
	frame, err := json.Marshal(ClientResponse{Event: event, Payload: payload})
	if err != nil {
		r.logger.Error("Failed to marshal response frame", slog.Any("error", err))
		return
	}
	conn.Transport.Send(frame)
}

func (r *EventRouter) sendError(conn *state.Connection, message string) {
	r.send(conn, EventError, map[string]any{"message": message})
}
