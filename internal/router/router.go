package router

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"nestchat/internal/chat"
	"nestchat/internal/hub"
	"nestchat/internal/websocket"
	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

// Router dispatches the realtime protocol: one switch over the client
// event union, testable case by case.
// Every durable mutation re-checks room membership inside the chat
// service; join_room is routing-only and never grants authority. Errors
// are delivered to the originating connection only and never close it.
type Router struct {
	chat     *chat.Service
	hub      *hub.Hub
	registry *websocket.Registry
	limiter  *RateLimiter

	mu        sync.Mutex
	sendLocks map[string]*sync.Mutex
}

// NewRouter creates the protocol router.
func NewRouter(chatService *chat.Service, broadcastHub *hub.Hub, registry *websocket.Registry) *Router {
	return &Router{
		chat:      chatService,
		hub:       broadcastHub,
		registry:  registry,
		limiter:   NewRateLimiter(),
		sendLocks: make(map[string]*sync.Mutex),
	}
}

// StartLimiterCleanup drops idle rate-limiter windows in the background
// until ctx ends.
func (r *Router) StartLimiterCleanup(ctx context.Context) {
	r.limiter.StartCleanup(ctx, staleAfter)
}

// HandleEvent processes one decoded client event.
func (r *Router) HandleEvent(ctx context.Context, conn *websocket.Connection, evt types.Event) {
	if !conn.IsAuthenticated() {
		r.sendError(conn, "not authenticated")
		return
	}

	switch evt.Name {
	case types.EventJoinRoom:
		r.handleJoin(conn, evt.Data)
	case types.EventLeaveRoom:
		r.handleLeave(conn, evt.Data)
	case types.EventSendMessage:
		r.handleSend(ctx, conn, evt.Data)
	case types.EventTyping:
		r.handleTyping(conn, evt.Data, true)
	case types.EventStopTyping:
		r.handleTyping(conn, evt.Data, false)
	case types.EventMarkRead:
		r.handleMarkRead(ctx, conn, evt.Data)
	default:
		r.sendError(conn, "unknown event: "+evt.Name)
	}
}

// handleJoin subscribes the connection to a room channel. Cheap and
// unchecked: authorization happens where durable mutations do.
func (r *Router) handleJoin(conn *websocket.Connection, data json.RawMessage) {
	payload, ok := r.roomPayload(conn, data)
	if !ok {
		return
	}
	r.registry.JoinRoom(conn, payload.RoomID)
	log.Printf("User %s joined room %s (conn %s)", conn.UserID(), payload.RoomID, conn.ID())
}

func (r *Router) handleLeave(conn *websocket.Connection, data json.RawMessage) {
	payload, ok := r.roomPayload(conn, data)
	if !ok {
		return
	}
	r.registry.LeaveRoom(conn, payload.RoomID)
}

// handleSend persists through the chat service and then broadcasts the
// populated message to every connection joined to the room, the sender's
// own connections included. On failure only the sender hears about it and
// no room state has changed.
func (r *Router) handleSend(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var payload types.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		r.sendError(conn, "send_message requires room_id and content")
		return
	}

	if !r.limiter.Allow(conn.UserID()) {
		r.sendError(conn, "rate limit exceeded")
		return
	}

	// Append and broadcast-enqueue run under one per-room lock so the
	// hub's queue receives new_message events in seq order even with
	// concurrent senders.
	lock := r.sendLock(payload.RoomID)
	lock.Lock()
	defer lock.Unlock()

	message, err := r.chat.Send(ctx, conn.UserID(), payload.RoomID, payload.Content, payload.Type)
	if err != nil {
		r.sendError(conn, sendFailureMessage(err))
		return
	}

	evt, err := types.NewEvent(types.EventNewMessage, message)
	if err != nil {
		r.sendError(conn, "failed to encode message")
		return
	}
	if err := r.hub.BroadcastRoom(payload.RoomID, evt, ""); err != nil {
		log.Printf("Failed to broadcast new_message for room %s: %v", payload.RoomID, err)
	}
}

func (r *Router) sendLock(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, exists := r.sendLocks[roomID]
	if !exists {
		lock = &sync.Mutex{}
		r.sendLocks[roomID] = lock
	}
	return lock
}

// handleTyping relays an ephemeral indicator to the other connections
// joined to the room. Fire and forget: nothing persists, nothing errors.
func (r *Router) handleTyping(conn *websocket.Connection, data json.RawMessage, typing bool) {
	payload, ok := r.roomPayload(conn, data)
	if !ok {
		return
	}

	name := types.EventUserStopTyping
	notice := types.TypingNotice{UserID: conn.UserID()}
	if typing {
		name = types.EventUserTyping
		notice.Name = conn.UserName()
	}

	evt, err := types.NewEvent(name, notice)
	if err != nil {
		return
	}
	if err := r.hub.BroadcastRoom(payload.RoomID, evt, conn.ID()); err != nil {
		log.Printf("Failed to broadcast typing notice for room %s: %v", payload.RoomID, err)
	}
}

func (r *Router) handleMarkRead(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	payload, ok := r.roomPayload(conn, data)
	if !ok {
		return
	}

	if _, err := r.chat.MarkRead(ctx, conn.UserID(), payload.RoomID); err != nil {
		r.sendError(conn, sendFailureMessage(err))
		return
	}

	evt, err := types.NewEvent(types.EventMessagesRead, types.ReadNotice{
		RoomID: payload.RoomID,
		ReadBy: conn.UserID(),
	})
	if err != nil {
		return
	}
	if err := r.hub.BroadcastRoom(payload.RoomID, evt, conn.ID()); err != nil {
		log.Printf("Failed to broadcast messages_read for room %s: %v", payload.RoomID, err)
	}
}

func (r *Router) roomPayload(conn *websocket.Connection, data json.RawMessage) (types.RoomPayload, bool) {
	var payload types.RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		r.sendError(conn, "event requires room_id")
		return payload, false
	}
	return payload, true
}

func (r *Router) sendError(conn *websocket.Connection, message string) {
	evt, err := types.NewEvent(types.EventError, types.ErrorNotice{Message: message})
	if err != nil {
		return
	}
	if err := conn.WriteEvent(evt); err != nil {
		log.Printf("Failed to send error to %s: %v", conn.UserID(), err)
	}
}

func sendFailureMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotParticipant):
		return "not a participant of this room"
	case errors.Is(err, interfaces.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrContentTooLong),
		errors.Is(err, types.ErrInvalidMessageType),
		errors.Is(err, types.ErrInvalidRoomID):
		return err.Error()
	default:
		return "failed to process message"
	}
}
