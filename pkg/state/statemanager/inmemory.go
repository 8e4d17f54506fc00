package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state"
)

var ErrUnknownConnection = errors.New("connection is not registered")

// InMemoryManager holds the whole membership index behind a single RWMutex.
// Fan-out callers take read snapshots; all mutation happens under the write
// lock, so a deregistered connection can never reappear in a later snapshot.
type InMemoryManager struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*state.Connection
	rooms    map[string]map[uuid.UUID]*state.Connection
	groups   map[state.Group]map[uuid.UUID]*state.Connection
	subjects map[string]map[uuid.UUID]*state.Connection

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:    make(map[uuid.UUID]*state.Connection),
		rooms:    make(map[string]map[uuid.UUID]*state.Connection),
		groups:   make(map[state.Group]map[uuid.UUID]*state.Connection),
		subjects: make(map[string]map[uuid.UUID]*state.Connection),
		logger:   logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(conn state.Sender, meta state.ConnectionMeta) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:          connID,
		Transport:   conn,
		Subject:     meta.Subject,
		Email:       meta.Email,
		Scheme:      meta.Scheme,
		IPAddress:   meta.IPAddress,
		ConnectedAt: time.Now(),
		Groups:      make(map[state.Group]struct{}),
		Rooms:       make(map[string]struct{}),
	}
	m.conns[connID] = newConn

	// Every admitted connection belongs to the public group.
	m.addToGroupLocked(newConn, state.GroupPublic)

	if meta.Subject != "" {
		byID, ok := m.subjects[meta.Subject]
		if !ok {
			byID = make(map[uuid.UUID]*state.Connection)
			m.subjects[meta.Subject] = byID
		}
		byID[connID] = newConn
	}

	m.logger.Debug("Connection registered",
		slog.String("connID", connID.String()),
		slog.String("subject", meta.Subject),
	)
	return newConn, nil
}

func (m *InMemoryManager) Deregister(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// already deregistered
		return
	}

	for roomID := range conn.Rooms {
		m.removeFromRoomLocked(conn, roomID)
	}
	for group := range conn.Groups {
		if members, ok := m.groups[group]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(m.groups, group)
			}
		}
	}
	if byID, ok := m.subjects[conn.Subject]; ok {
		delete(byID, connID)
		if len(byID) == 0 {
			delete(m.subjects, conn.Subject)
		}
	}
	delete(m.conns, connID)

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
}

func (m *InMemoryManager) Get(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

// --- Group & Room Membership ---

func (m *InMemoryManager) JoinGroup(connID uuid.UUID, group state.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	m.addToGroupLocked(conn, group)
	m.logger.Debug("Connection joined group",
		slog.String("connID", connID.String()),
		slog.String("group", string(group)),
	)
	return nil
}

func (m *InMemoryManager) JoinRoom(connID uuid.UUID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if _, already := conn.Rooms[orderID]; already {
		return nil
	}

	members, ok := m.rooms[orderID]
	if !ok {
		members = make(map[uuid.UUID]*state.Connection)
		m.rooms[orderID] = members
	}
	members[connID] = conn
	conn.Rooms[orderID] = struct{}{}

	m.logger.Debug("Connection joined room",
		slog.String("connID", connID.String()),
		slog.String("orderID", orderID),
	)
	return nil
}

func (m *InMemoryManager) LeaveRoom(connID uuid.UUID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	m.removeFromRoomLocked(conn, orderID)

	m.logger.Debug("Connection left room",
		slog.String("connID", connID.String()),
		slog.String("orderID", orderID),
	)
	return nil
}

func (m *InMemoryManager) RoomMembers(orderID string) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.rooms[orderID]
	if !ok {
		return nil
	}
	snapshot := make([]*state.Connection, 0, len(members))
	for _, c := range members {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

func (m *InMemoryManager) GroupMembers(group state.Group) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.groups[group]
	if !ok {
		return nil
	}
	snapshot := make([]*state.Connection, 0, len(members))
	for _, c := range members {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// --- Per-subject bookkeeping ---

func (m *InMemoryManager) SubjectConnectionCount(subject string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subjects[subject])
}

func (m *InMemoryManager) FindOldestSubjectConnection(subject string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var oldest *state.Connection
	for _, conn := range m.subjects[subject] {
		if oldest == nil || conn.ConnectedAt.Before(oldest.ConnectedAt) {
			oldest = conn
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest, true
}

// --- Operational visibility ---

func (m *InMemoryManager) Stats() state.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	perGroup := make(map[state.Group]int, len(m.groups))
	for group, members := range m.groups {
		perGroup[group] = len(members)
	}
	return state.Stats{
		TotalConnections: len(m.conns),
		PerGroup:         perGroup,
	}
}

// --- internal helpers, caller must hold the write lock ---

func (m *InMemoryManager) addToGroupLocked(conn *state.Connection, group state.Group) {
	members, ok := m.groups[group]
	if !ok {
		members = make(map[uuid.UUID]*state.Connection)
		m.groups[group] = members
	}
	members[conn.ID] = conn
	conn.Groups[group] = struct{}{}
}

func (m *InMemoryManager) removeFromRoomLocked(conn *state.Connection, orderID string) {
	delete(conn.Rooms, orderID)
	members, ok := m.rooms[orderID]
	if !ok {
		return
	}
	delete(members, conn.ID)
	// Rooms are ephemeral; the last member out turns off the lights.
	if len(members) == 0 {
		delete(m.rooms, orderID)
		m.logger.Debug("Removed empty room", slog.String("orderID", orderID))
	}
}
