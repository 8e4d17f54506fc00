package state

import "github.com/google/uuid"

type Manager interface {
	// --- Connection Lifecycle ---
	Register(conn Sender, meta ConnectionMeta) (*Connection, error)
	// Deregister removes the connection from every group, every room, and
	// the registry as one logical operation. It is idempotent; a second
	// call for the same id is a no-op.
	Deregister(connID uuid.UUID)
	Get(connID uuid.UUID) (*Connection, bool)

	// --- Group & Room Membership ---
	// JoinGroup is idempotent.
	JoinGroup(connID uuid.UUID, group Group) error
	// JoinRoom is idempotent; the room is created on first join.
	JoinRoom(connID uuid.UUID, orderID string) error
	// LeaveRoom discards the room once its last member leaves.
	LeaveRoom(connID uuid.UUID, orderID string) error
	// RoomMembers returns nil for an unknown room; fan-out to nobody is
	// valid and silent.
	RoomMembers(orderID string) []*Connection
	GroupMembers(group Group) []*Connection

	// --- Per-subject bookkeeping (connection limiter) ---
	SubjectConnectionCount(subject string) int
	FindOldestSubjectConnection(subject string) (*Connection, bool)

	// --- Operational visibility ---
	Stats() Stats
}
