package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nestchat/pkg/types"
)

// Options configure per-connection buffering, heartbeat and timeouts.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	return o
}

// Connection wraps one live realtime session. All writes are serialized
// through a single goroutine to keep gorilla/websocket happy under
// concurrent broadcasts. The joined-room set is a routing address only;
// authorization always goes back to the room directory.
type Connection struct {
	id      string
	conn    *websocket.Conn
	writeCh chan []byte

	writeTimeout time.Duration

	userID        string
	userName      string
	authenticated bool

	joined map[string]bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConnection wraps an upgraded WebSocket connection and starts its
// writer goroutine.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		joined:       make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEvent queues an event frame for delivery, blocking up to the write
// timeout when the buffer is full. Intended for sender-scoped writes; the
// hub's fan-out uses TryWriteEvent.
func (c *Connection) WriteEvent(evt types.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// TryWriteEvent queues an event frame without ever blocking. A full buffer
// returns ErrBufferFull and the frame is not queued; the caller decides
// whether to drop or disconnect.
func (c *Connection) TryWriteEvent(evt types.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrBufferFull
	}
}

// Close tears the connection down. Idempotent; the joined-room set is
// dropped without side effects on the room directory.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed when the connection is no longer live.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetIdentity records the authenticated user after the handshake has been
// verified. Events from a connection without identity are rejected.
func (c *Connection) SetIdentity(userID, userName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.userName = userName
	c.authenticated = true
}

// IsAuthenticated reports whether identity has been set.
func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// ID returns the connection's unique id (one user may hold several).
func (c *Connection) ID() string {
	return c.id
}

// UserID returns the authenticated user id.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// UserName returns the authenticated user's display name.
func (c *Connection) UserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userName
}

func (c *Connection) joinRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[roomID] = true
}

func (c *Connection) leaveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, roomID)
}

// InRoom reports whether this connection has joined roomID.
func (c *Connection) InRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined[roomID]
}

// Rooms returns the joined room ids.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.joined))
	for roomID := range c.joined {
		rooms = append(rooms, roomID)
	}
	return rooms
}
