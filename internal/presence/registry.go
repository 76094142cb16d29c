package presence

import (
	"sync"

	"go.uber.org/zap"

	"chatrelay/internal/domain"
)

// Registry tracks which live connections belong to which user. A user is
// online iff it has at least one registered connection.
//
// All mutations take the registry mutex, and presence broadcasts are enqueued
// while it is held, so transitions for a user reach peers in arrival order.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*Conn
	users map[domain.UserID]map[domain.ConnectionID]*Conn
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		conns: make(map[domain.ConnectionID]*Conn),
		users: make(map[domain.UserID]map[domain.ConnectionID]*Conn),
		log:   log,
	}
}

// Register adds the connection to its user's active set. It reports whether
// the user transitioned to online. Registering the same connection twice is a
// no-op; registering a released connection fails.
func (r *Registry) Register(c *Conn) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Closed() {
		return false, domain.ErrConnectionClosed
	}
	if _, ok := r.conns[c.ID()]; ok {
		return false, nil
	}

	r.conns[c.ID()] = c
	set, ok := r.users[c.UserID()]
	if !ok {
		set = make(map[domain.ConnectionID]*Conn)
		r.users[c.UserID()] = set
	}
	set[c.ID()] = c

	online := len(set) == 1
	if online {
		r.broadcastLocked(domain.EventUserOnline, c.Profile().Presence(true))
	}
	r.log.Debug("connection registered",
		zap.String("conn_id", string(c.ID())),
		zap.Stringer("user_id", c.UserID()),
		zap.Int("user_connections", len(set)),
	)
	return online, nil
}

// Unregister releases the connection. It reports whether its user went
// offline. Unknown ids are ignored.
func (r *Registry) Unregister(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	delete(r.conns, id)
	c.close()

	set := r.users[c.UserID()]
	delete(set, id)
	offline := len(set) == 0
	if offline {
		delete(r.users, c.UserID())
		r.broadcastLocked(domain.EventUserOffline, c.Profile().Presence(false))
	}
	r.log.Debug("connection unregistered",
		zap.String("conn_id", string(id)),
		zap.Stringer("user_id", c.UserID()),
		zap.Bool("offline", offline),
	)
	return offline
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// IsActive reports whether the connection id is currently registered.
func (r *Registry) IsActive(id domain.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Lookup(id domain.ConnectionID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ConnectionsOf returns the user's live connections.
func (r *Registry) ConnectionsOf(userID domain.UserID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.UserID, 0, len(r.users))
	for uid := range r.users {
		out = append(out, uid)
	}
	return out
}

// Connections returns the ids of every registered connection.
func (r *Registry) Connections() []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.ConnectionID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) broadcastLocked(event string, payload domain.PresencePayload) {
	frame, err := domain.EncodeFrame(event, "", payload)
	if err != nil {
		r.log.Error("encode presence frame", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range r.conns {
		// kicked connections are already being torn down by their transport
		if c.Kicked() {
			continue
		}
		if !c.Enqueue(frame) {
			r.log.Warn("presence frame dropped",
				zap.String("event", event),
				zap.String("conn_id", string(c.ID())),
			)
		}
	}
}
