package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const transportWebSocket = "websocket"

const (
	// CloseLogout is the close code sent when the user signed out; clients must not reconnect.
	CloseLogout = 4001
	// CloseReasonLogout accompanies CloseLogout.
	CloseReasonLogout = "logout"
)

var (
	// ErrConnectionClosed is returned when pushing to a connection that has already gone away.
	ErrConnectionClosed = errors.New("realtime: connection closed")
	// ErrSendBufferFull is returned when a slow reader has exhausted its outbound buffer.
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// Identity is the verified handshake identity bound to a connection.
type Identity struct {
	UserID int64
	Token  string
}

// Connection is one live transport session owned by a single user.
type Connection struct {
	id          string
	userID      int64
	token       string
	transport   string
	connectedAt time.Time

	send      chan []byte
	done      chan struct{}
	mu        sync.Mutex
	closed    bool
	closeCode int
	closeText string
	joined    atomic.Bool
}

func newConnection(id string, identity Identity, connectedAt time.Time, buffer int) *Connection {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Connection{
		id:          id,
		userID:      identity.UserID,
		token:       identity.Token,
		transport:   transportWebSocket,
		connectedAt: connectedAt,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// ID returns the hub-assigned connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// UserID returns the authenticated owner of the connection.
func (c *Connection) UserID() int64 {
	return c.userID
}

func (c *Connection) Token() string {
	return c.token
}

func (c *Connection) Transport() string {
	return c.transport
}

func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// Joined reports whether the connection has been admitted to its user room.
func (c *Connection) Joined() bool {
	return c.joined.Load()
}

// Done is closed once the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close marks the connection closed and reports whether this call did it.
func (c *Connection) close() bool {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith is close with the code and reason the write pump sends to the peer.
// Only the first call decides them.
func (c *Connection) closeWith(code int, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.closeCode = code
	c.closeText = text
	close(c.done)
	return true
}

func (c *Connection) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeText)
}
