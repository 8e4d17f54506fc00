package statemanager_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state/statemanager"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

type fakeSender struct {
	id   uuid.UUID
	sent [][]byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{id: uuid.New()}
}

func (f *fakeSender) ID() uuid.UUID { return f.id }
func (f *fakeSender) Send(message []byte) bool {
	f.sent = append(f.sent, message)
	return true
}
func (f *fakeSender) Close(err error) {}

func register(t *testing.T, m state.Manager, subject string) *state.Connection {
	t.Helper()
	conn, err := m.Register(newFakeSender(), state.ConnectionMeta{Subject: subject, IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return conn
}

// --- Connection Lifecycle Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := register(t, m, "user-1")

	retrieved, found := m.Get(conn.ID)
	if !found {
		t.Fatal("Get failed to find registered connection")
	}
	if retrieved.Subject != "user-1" {
		t.Errorf("Expected subject user-1, got %s", retrieved.Subject)
	}
	if _, ok := retrieved.Groups[state.GroupPublic]; !ok {
		t.Error("New connection is not in the public group")
	}

	m.Deregister(conn.ID)
	if _, found := m.Get(conn.ID); found {
		t.Error("Found connection after it should have been deregistered")
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	m := newTestManager()
	sender := newFakeSender()

	if _, err := m.Register(sender, state.ConnectionMeta{Subject: "u"}); err != nil {
		t.Fatalf("First Register failed: %v", err)
	}
	if _, err := m.Register(sender, state.ConnectionMeta{Subject: "u"}); err == nil {
		t.Error("Second Register of the same connection id did not fail")
	}
}

func TestDeregisterCleansAllMembership(t *testing.T) {
	m := newTestManager()
	conn := register(t, m, "driver-1")

	if err := m.JoinGroup(conn.ID, state.GroupDriver); err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	if err := m.JoinRoom(conn.ID, "order_42"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if err := m.JoinRoom(conn.ID, "order_43"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	m.Deregister(conn.ID)

	if members := m.RoomMembers("order_42"); len(members) != 0 {
		t.Errorf("order_42 still has %d members after deregister", len(members))
	}
	if members := m.RoomMembers("order_43"); len(members) != 0 {
		t.Errorf("order_43 still has %d members after deregister", len(members))
	}
	if members := m.GroupMembers(state.GroupDriver); len(members) != 0 {
		t.Errorf("driver group still has %d members after deregister", len(members))
	}
	if count := m.SubjectConnectionCount("driver-1"); count != 0 {
		t.Errorf("Subject still has %d connections after deregister", count)
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	m := newTestManager()
	conn := register(t, m, "user-1")
	m.JoinRoom(conn.ID, "order_1")

	// Simulate a network drop followed by an explicit logout for the same
	// connection. The end state must match a single disconnect.
	m.Deregister(conn.ID)
	m.Deregister(conn.ID)

	if stats := m.Stats(); stats.TotalConnections != 0 {
		t.Errorf("Expected 0 connections, got %d", stats.TotalConnections)
	}
	if members := m.RoomMembers("order_1"); members != nil {
		t.Errorf("Expected nil members for dropped room, got %d", len(members))
	}
}

// --- Group & Room Tests ---

func TestJoinRoomIdempotent(t *testing.T) {
	m := newTestManager()
	conn := register(t, m, "user-1")

	if err := m.JoinRoom(conn.ID, "order_7"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if err := m.JoinRoom(conn.ID, "order_7"); err != nil {
		t.Fatalf("Repeat JoinRoom failed: %v", err)
	}
	if members := m.RoomMembers("order_7"); len(members) != 1 {
		t.Errorf("Expected 1 member after duplicate join, got %d", len(members))
	}
}

func TestJoinRoomUnknownConnection(t *testing.T) {
	m := newTestManager()
	if err := m.JoinRoom(uuid.New(), "order_1"); err == nil {
		t.Error("JoinRoom accepted an unregistered connection")
	}
}

func TestLeaveRoomDropsEmptyRoom(t *testing.T) {
	m := newTestManager()
	c1 := register(t, m, "user-1")
	c2 := register(t, m, "user-2")
	m.JoinRoom(c1.ID, "order_9")
	m.JoinRoom(c2.ID, "order_9")

	if err := m.LeaveRoom(c1.ID, "order_9"); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}
	if members := m.RoomMembers("order_9"); len(members) != 1 {
		t.Fatalf("Expected 1 remaining member, got %d", len(members))
	}

	m.LeaveRoom(c2.ID, "order_9")
	if members := m.RoomMembers("order_9"); members != nil {
		t.Error("Room was not discarded after its last member left")
	}
}

func TestRoomIsolation(t *testing.T) {
	m := newTestManager()
	cA := register(t, m, "user-a")
	cB := register(t, m, "user-b")
	m.JoinRoom(cA.ID, "order_A")
	m.JoinRoom(cB.ID, "order_B")

	for _, member := range m.RoomMembers("order_A") {
		if member.ID == cB.ID {
			t.Error("Member of order_B appeared in order_A")
		}
	}
}

// --- Subject Bookkeeping Tests ---

func TestSubjectConnectionCount(t *testing.T) {
	m := newTestManager()
	c1 := register(t, m, "user-1")
	register(t, m, "user-1")
	register(t, m, "user-2")

	if count := m.SubjectConnectionCount("user-1"); count != 2 {
		t.Errorf("Expected 2 connections for user-1, got %d", count)
	}

	m.Deregister(c1.ID)
	if count := m.SubjectConnectionCount("user-1"); count != 1 {
		t.Errorf("Expected 1 connection after deregister, got %d", count)
	}
	if count := m.SubjectConnectionCount("nobody"); count != 0 {
		t.Errorf("Expected 0 connections for unknown subject, got %d", count)
	}
}

func TestFindOldestSubjectConnection(t *testing.T) {
	m := newTestManager()
	c1 := register(t, m, "user-cycle")
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	register(t, m, "user-cycle")

	oldest, found := m.FindOldestSubjectConnection("user-cycle")
	if !found {
		t.Fatal("FindOldestSubjectConnection found nothing")
	}
	if oldest.ID != c1.ID {
		t.Error("FindOldestSubjectConnection did not return the first connection")
	}

	if _, found := m.FindOldestSubjectConnection("nobody"); found {
		t.Error("Found a connection for an unknown subject")
	}
}

// --- Stats Tests ---

func TestStatsSnapshot(t *testing.T) {
	m := newTestManager()
	c1 := register(t, m, "driver-1")
	c2 := register(t, m, "admin-1")
	register(t, m, "customer-1")
	m.JoinGroup(c1.ID, state.GroupDriver)
	m.JoinGroup(c2.ID, state.GroupAdmin)

	stats := m.Stats()
	if stats.TotalConnections != 3 {
		t.Errorf("Expected 3 total connections, got %d", stats.TotalConnections)
	}
	if stats.PerGroup[state.GroupPublic] != 3 {
		t.Errorf("Expected 3 public members, got %d", stats.PerGroup[state.GroupPublic])
	}
	if stats.PerGroup[state.GroupDriver] != 1 {
		t.Errorf("Expected 1 driver member, got %d", stats.PerGroup[state.GroupDriver])
	}
	if stats.PerGroup[state.GroupAdmin] != 1 {
		t.Errorf("Expected 1 admin member, got %d", stats.PerGroup[state.GroupAdmin])
	}
}
