// Package rooms binds live connections to conversation rooms.
//
// A connection's room set reflects the membership store as of connect time
// plus explicit joins and leaves. Nothing here polls the store.
package rooms

import (
	"sync"

	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
)

type Manager struct {
	mu     sync.RWMutex
	rooms  map[domain.ConversationID]map[domain.ConnectionID]*presence.Conn
	byConn map[domain.ConnectionID]map[domain.ConversationID]struct{}
	log    *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		rooms:  make(map[domain.ConversationID]map[domain.ConnectionID]*presence.Conn),
		byConn: make(map[domain.ConnectionID]map[domain.ConversationID]struct{}),
		log:    log,
	}
}

// SubscribeAll joins the connection to every listed room. It returns the
// number of rooms added.
func (m *Manager) SubscribeAll(c *presence.Conn, ids []domain.ConversationID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, id := range ids {
		if m.joinLocked(c, id) {
			added++
		}
	}
	m.log.Debug("subscribed connection",
		zap.String("conn_id", string(c.ID())),
		zap.Int("rooms", added),
	)
	return added
}

// Join adds a room to a live connection. Closed connections are ignored so
// a join racing a disconnect cannot leave a dangling subscription.
func (m *Manager) Join(c *presence.Conn, id domain.ConversationID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinLocked(c, id)
}

// JoinAll joins each of the connections to the room and returns how many
// subscriptions were added.
func (m *Manager) JoinAll(conns []*presence.Conn, id domain.ConversationID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, c := range conns {
		if m.joinLocked(c, id) {
			added++
		}
	}
	return added
}

func (m *Manager) joinLocked(c *presence.Conn, id domain.ConversationID) bool {
	if c.Closed() {
		return false
	}
	subs, ok := m.rooms[id]
	if !ok {
		subs = make(map[domain.ConnectionID]*presence.Conn)
		m.rooms[id] = subs
	}
	if _, ok := subs[c.ID()]; ok {
		return false
	}
	subs[c.ID()] = c

	joined, ok := m.byConn[c.ID()]
	if !ok {
		joined = make(map[domain.ConversationID]struct{})
		m.byConn[c.ID()] = joined
	}
	joined[id] = struct{}{}
	return true
}

// Leave removes a room from the connection. Empty rooms are deleted.
func (m *Manager) Leave(connID domain.ConnectionID, id domain.ConversationID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID, id)
}

func (m *Manager) leaveLocked(connID domain.ConnectionID, id domain.ConversationID) bool {
	subs, ok := m.rooms[id]
	if !ok {
		return false
	}
	if _, ok := subs[connID]; !ok {
		return false
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(m.rooms, id)
	}
	if joined, ok := m.byConn[connID]; ok {
		delete(joined, id)
		if len(joined) == 0 {
			delete(m.byConn, connID)
		}
	}
	return true
}

// Drop removes every subscription of a connection.
func (m *Manager) Drop(connID domain.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.byConn[connID] {
		m.leaveLocked(connID, id)
	}
	delete(m.byConn, connID)
}

// Subscribers returns the connections currently subscribed to the room.
func (m *Manager) Subscribers(id domain.ConversationID) []*presence.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := m.rooms[id]
	out := make([]*presence.Conn, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

func (m *Manager) RoomsOf(connID domain.ConnectionID) []domain.ConversationID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := m.byConn[connID]
	out := make([]domain.ConversationID, 0, len(joined))
	for id := range joined {
		out = append(out, id)
	}
	return out
}

func (m *Manager) IsSubscribed(connID domain.ConnectionID, id domain.ConversationID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[id][connID]
	return ok
}

// RoomCount returns the number of rooms with at least one subscriber.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
