package state

import (
	"time"

	"github.com/google/uuid"
)

// Group is one of the broad channel partitions a connection can belong to for
// the duration of its session.
type Group string

const (
	GroupPublic   Group = "public"
	GroupCustomer Group = "customer"
	GroupDriver   Group = "driver"
	GroupAdmin    Group = "admin"
)

// ParseGroup maps a client-supplied group name to a joinable Group. The
// public group is implicit and cannot be requested.
func ParseGroup(s string) (Group, bool) {
	switch Group(s) {
	case GroupCustomer, GroupDriver, GroupAdmin:
		return Group(s), true
	}
	return "", false
}

// Sender is the transport-facing half of a connection. The membership index
// and the event router only ever talk to this interface, never to websocket
// internals.
type Sender interface {
	ID() uuid.UUID
	// Send queues a frame for delivery. It must not block; it reports false
	// when the frame was dropped (full buffer or closed connection).
	Send(message []byte) bool
	Close(err error)
}

// ConnectionMeta is the identity bound to a connection at admission time.
type ConnectionMeta struct {
	Subject   string
	Email     string
	Scheme    string
	IPAddress string
}

// Connection is the canonical record of a live, admitted connection. The
// Groups and Rooms sets are owned by the Manager and must only be mutated
// through it.
type Connection struct {
	ID          uuid.UUID
	Transport   Sender
	Subject     string
	Email       string
	Scheme      string
	IPAddress   string
	ConnectedAt time.Time
	Groups      map[Group]struct{}
	Rooms       map[string]struct{}
}

// Stats is a point-in-time snapshot of the registry.
type Stats struct {
	TotalConnections int           `json:"totalConnections"`
	PerGroup         map[Group]int `json:"perGroup"`
}
