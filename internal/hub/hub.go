package hub

import (
	"context"
	"log"
	"sync"

	"nestchat/internal/websocket"
	"nestchat/pkg/types"
)

type scope int

const (
	scopeRoom scope = iota
	scopeGlobal
	scopeUser
)

type broadcast struct {
	scope       scope
	target      string // room id or user id; empty for global
	event       types.Event
	excludeConn string // connection id to skip (typing/read notices)
}

// Hub fans events out to connections. All broadcasts flow through one
// goroutine, so events leave in enqueue order; the router serializes
// append and enqueue per room, which makes room delivery order equal
// persistence order. Delivery to any single connection never blocks the
// fan-out goroutine: a connection with a full buffer loses the frame.
type Hub struct {
	queue    chan broadcast
	shutdown chan struct{}
	registry *websocket.Registry
	running  bool
	mu       sync.RWMutex
}

// NewHub creates a hub over the connection registry.
func NewHub(registry *websocket.Registry) *Hub {
	return &Hub{
		queue:    make(chan broadcast, 1000),
		shutdown: make(chan struct{}),
		registry: registry,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting broadcast hub")
	go h.run(ctx)
	return nil
}

// Stop shuts the hub down.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	return nil
}

// BroadcastRoom delivers an event to every connection joined to roomID.
// excludeConn may name one connection to skip ("" delivers to all,
// including the sender's own connections).
func (h *Hub) BroadcastRoom(roomID string, evt types.Event, excludeConn string) error {
	return h.enqueue(broadcast{scope: scopeRoom, target: roomID, event: evt, excludeConn: excludeConn})
}

// BroadcastAll delivers an event to every active connection system-wide.
// Presence is global by design: any user may need another's status before
// a room between them exists.
func (h *Hub) BroadcastAll(evt types.Event) error {
	return h.enqueue(broadcast{scope: scopeGlobal, event: evt})
}

// SendToUser delivers an event to all of one user's connections (the
// personal notification channel).
func (h *Hub) SendToUser(userID string, evt types.Event) error {
	return h.enqueue(broadcast{scope: scopeUser, target: userID, event: evt})
}

func (h *Hub) enqueue(b broadcast) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.queue <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Broadcast hub stopped")

	for {
		select {
		case b := <-h.queue:
			h.deliver(b)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(b broadcast) {
	var conns []*websocket.Connection
	switch b.scope {
	case scopeRoom:
		conns = h.registry.RoomConnections(b.target)
	case scopeGlobal:
		conns = h.registry.AllConnections()
	case scopeUser:
		conns = h.registry.UserConnections(b.target)
	}

	for _, conn := range conns {
		if b.excludeConn != "" && conn.ID() == b.excludeConn {
			continue
		}
		if err := conn.TryWriteEvent(b.event); err != nil {
			// A slow or dead consumer loses this frame; delivery continues
			// to the remaining connections without blocking.
			log.Printf("Dropping %s for conn %s: %v", b.event.Name, conn.ID(), err)
		}
	}
}
