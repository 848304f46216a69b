package websocket

import (
	"sync"
)

// Registry is the connection↔room↔user routing table. A user may hold any
// number of concurrent connections; the per-user map doubles as the
// personal notification channel every connection is auto-subscribed to.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connID -> connection
	userConns   map[string]map[string]*Connection // userID -> connID -> connection
	roomConns   map[string]map[string]*Connection // roomID -> connID -> connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		userConns:   make(map[string]map[string]*Connection),
		roomConns:   make(map[string]map[string]*Connection),
	}
}

// Register adds an authenticated connection and subscribes it to its
// user's personal channel.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID()] = conn
	if r.userConns[userID] == nil {
		r.userConns[userID] = make(map[string]*Connection)
	}
	r.userConns[userID][conn.ID()] = conn

	return nil
}

// Unregister removes a connection from every map. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; !exists {
		return
	}
	delete(r.connections, conn.ID())

	userID := conn.UserID()
	if conns, exists := r.userConns[userID]; exists {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(r.userConns, userID)
		}
	}

	for _, roomID := range conn.Rooms() {
		r.removeFromRoom(roomID, conn.ID())
	}
}

// JoinRoom subscribes the connection to a room channel. Routing only: no
// membership check happens here.
func (r *Registry) JoinRoom(conn *Connection, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomConns[roomID] == nil {
		r.roomConns[roomID] = make(map[string]*Connection)
	}
	r.roomConns[roomID][conn.ID()] = conn
	conn.joinRoom(roomID)
}

// LeaveRoom drops the room subscription.
func (r *Registry) LeaveRoom(conn *Connection, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromRoom(roomID, conn.ID())
	conn.leaveRoom(roomID)
}

func (r *Registry) removeFromRoom(roomID, connID string) {
	if conns, exists := r.roomConns[roomID]; exists {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.roomConns, roomID)
		}
	}
}

// RoomConnections returns the connections currently joined to a room.
func (r *Registry) RoomConnections(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.roomConns[roomID]))
	for _, conn := range r.roomConns[roomID] {
		conns = append(conns, conn)
	}
	return conns
}

// UserConnections returns every live connection for a user.
func (r *Registry) UserConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.userConns[userID]))
	for _, conn := range r.userConns[userID] {
		conns = append(conns, conn)
	}
	return conns
}

// AllConnections returns every live connection (global presence fan-out).
func (r *Registry) AllConnections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Stats returns counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"online_users":      len(r.userConns),
		"active_rooms":      len(r.roomConns),
	}
}
