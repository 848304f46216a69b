package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nestchat/internal/presence"
	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Mobile clients connect from app contexts without a stable origin.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventRouter dispatches one decoded client event. Implemented by
// internal/router; kept as an interface here to avoid an import cycle.
type EventRouter interface {
	HandleEvent(ctx context.Context, conn *Connection, evt types.Event)
}

// Broadcaster is the subset of the hub the handler needs for presence
// fan-out.
type Broadcaster interface {
	BroadcastAll(evt types.Event) error
}

// Handler authenticates upgrade requests and owns the connection
// lifecycle: online on entry, offline with last-seen on any disconnect.
type Handler struct {
	registry *Registry
	verifier interfaces.SessionVerifier
	users    interfaces.UserDirectory
	presence *presence.Tracker
	hub      Broadcaster
	router   EventRouter
	opts     Options
}

// NewHandler wires the realtime entry point.
func NewHandler(registry *Registry, verifier interfaces.SessionVerifier, users interfaces.UserDirectory,
	tracker *presence.Tracker, hub Broadcaster, router EventRouter, opts Options) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		users:    users,
		presence: tracker,
		hub:      hub,
		router:   router,
		opts:     opts.withDefaults(),
	}
}

// HandleWebSocket upgrades GET /ws. The session token is verified before
// the upgrade so an invalid credential is refused with 401 and no
// connection state ever exists.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	userID, err := h.verifier.VerifySession(r.Context(), token)
	if err != nil {
		http.Error(w, "Invalid or missing session token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if err == interfaces.ErrUserNotFound {
			http.Error(w, "Unknown user", http.StatusUnauthorized)
		} else {
			http.Error(w, "Identity lookup failed", http.StatusInternalServerError)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.opts)
	wsConn.SetIdentity(user.ID, user.Name)

	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	h.markOnline(wsConn)

	go h.handleConnection(wsConn)
}

// markOnline records presence and broadcasts the status change to every
// active connection system-wide.
func (h *Handler) markOnline(conn *Connection) {
	change, err := h.presence.SetOnline(context.Background(), conn.UserID())
	if err != nil {
		log.Printf("Failed to mark %s online: %v", conn.UserID(), err)
		return
	}
	h.broadcastStatus(change)
}

func (h *Handler) markOffline(conn *Connection) {
	change, err := h.presence.SetOffline(context.Background(), conn.UserID())
	if err != nil {
		log.Printf("Failed to mark %s offline: %v", conn.UserID(), err)
		return
	}
	h.broadcastStatus(change)
}

func (h *Handler) broadcastStatus(change types.StatusChange) {
	evt, err := types.NewEvent(types.EventUserStatus, change)
	if err != nil {
		log.Printf("Failed to build user_status event: %v", err)
		return
	}
	if err := h.hub.BroadcastAll(evt); err != nil {
		log.Printf("Failed to broadcast user_status: %v", err)
	}
}

// handleConnection runs the read pump with heartbeat monitoring. On exit
// the connection is unregistered and the user is marked offline; in-flight
// sends that already persisted still broadcast normally.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.markOffline(conn)
		log.Printf("Disconnected: user=%s conn=%s", conn.UserID(), conn.ID())
	}()

	log.Printf("Connected: user=%s conn=%s", conn.UserID(), conn.ID())

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for %s: %v", conn.UserID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var evt types.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			h.sendError(conn, "malformed event frame")
			continue
		}

		// Deliberately not the connection context: an event already being
		// processed runs to completion even if the connection drops.
		h.router.HandleEvent(context.Background(), conn, evt)
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	evt, err := types.NewEvent(types.EventError, types.ErrorNotice{Message: message})
	if err != nil {
		return
	}
	if err := conn.WriteEvent(evt); err != nil {
		log.Printf("Failed to send error to %s: %v", conn.UserID(), err)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
