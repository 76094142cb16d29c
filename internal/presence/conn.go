package presence

import (
	"sync"

	"github.com/google/uuid"

	"chatrelay/internal/domain"
)

// Conn is the registry's handle for one live transport session. The transport
// drains Outbound and stops writing once Done is closed.
type Conn struct {
	id      domain.ConnectionID
	profile domain.Profile
	send    chan []byte

	mu     sync.Mutex
	closed bool
	kicked bool
	done   chan struct{}
}

// NewConn creates a connection handle with a fresh id and an outbound queue
// of the given capacity.
func NewConn(profile domain.Profile, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		id:      domain.ConnectionID(uuid.NewString()),
		profile: profile,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
}

func (c *Conn) ID() domain.ConnectionID { return c.id }

func (c *Conn) UserID() domain.UserID { return c.profile.UserID }

func (c *Conn) Profile() domain.Profile { return c.profile }

// Outbound yields encoded frames in enqueue order.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed when the connection is unregistered or dropped as a slow
// consumer.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Enqueue queues a frame without blocking. A full queue marks the connection
// as a slow consumer and closes Done so the transport tears it down.
func (c *Conn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.kicked {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.kicked = true
		close(c.done)
		return false
	}
}

// Closed reports whether the registry has released this connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Kicked reports whether the connection was dropped for falling behind.
func (c *Conn) Kicked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kicked
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if !c.kicked {
		close(c.done)
	}
}
