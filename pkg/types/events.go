package types

import (
	"encoding/json"
	"fmt"
)

// Client-to-server event names. Together they form the whole realtime
// protocol; the router dispatches on them exhaustively.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventMarkRead    = "mark_read"
)

// Server-to-client event names.
const (
	EventNewMessage     = "new_message"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventMessagesRead   = "messages_read"
	EventUserStatus     = "user_status"
	EventError          = "error"
)

// Event is the wire envelope for every realtime frame in both directions.
// Data is left raw inbound so the router can decode per event name.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an outbound envelope with a marshaled payload.
func NewEvent(name string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Name: name}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// RoomPayload carries the room id for join_room, leave_room, typing,
// stop_typing and mark_read.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// SendMessagePayload is the send_message input. Type defaults to "text".
type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// TypingNotice goes to the other connections joined to a room.
type TypingNotice struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// ReadNotice tells other room members their messages were read.
type ReadNotice struct {
	RoomID string `json:"room_id"`
	ReadBy string `json:"read_by"`
}

// ErrorNotice is delivered only to the originating connection.
type ErrorNotice struct {
	Message string `json:"message"`
}
