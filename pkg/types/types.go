package types

import (
	"time"
)

// Message type constants. The set is extensible; "text" is the default
// applied when a client omits the field.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeOther = "other"
)

// User is the external identity referenced by the chat core. IsOnline and
// LastSeen are mutated exclusively by the presence tracker.
type User struct {
	ID       string     `json:"id" db:"id"`
	Name     string     `json:"name" db:"name"`
	Avatar   string     `json:"avatar" db:"avatar"`
	IsOnline bool       `json:"is_online" db:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty" db:"last_seen"`
}

// UserRef is the display subset of a user embedded in populated messages.
type UserRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ListingSummary is the display projection of a property listing. The chat
// core never owns listings; it only attaches this summary to rooms.
type ListingSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Room is a two-party conversation, optionally scoped to one listing.
// Participants are fixed at creation; ParticipantA < ParticipantB
// lexicographically so the unordered pair has one canonical storage form.
// LastMessageID and UpdatedAt move on every send.
type Room struct {
	ID            string    `json:"id" db:"id"`
	ParticipantA  string    `json:"-" db:"participant_a"`
	ParticipantB  string    `json:"-" db:"participant_b"`
	PropertyID    string    `json:"property_id,omitempty" db:"property_id"`
	LastMessageID string    `json:"last_message_id,omitempty" db:"last_message_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Participants returns the pair in canonical order.
func (r *Room) Participants() []string {
	return []string{r.ParticipantA, r.ParticipantB}
}

// HasParticipant reports whether userID belongs to the room's fixed
// membership set. This is the authorization check for every durable
// mutation; joined-connection state is never consulted for it.
func (r *Room) HasParticipant(userID string) bool {
	return userID == r.ParticipantA || userID == r.ParticipantB
}

// NormalizePair returns the unordered user pair in canonical storage order.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// RoomSummary is a room populated for API responses: participant display
// data, listing summary, and the most recent message.
type RoomSummary struct {
	ID           string          `json:"id"`
	Participants []User          `json:"participants"`
	Property     *ListingSummary `json:"property,omitempty"`
	LastMessage  *Message        `json:"last_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Message is one durable chat message. Seq is assigned by the store at
// append time and is the ordering authority within a room; CreatedAt is
// server-assigned and never client-supplied. Read flips to true only via
// the bulk mark-read operation, which skips the reader's own messages.
type Message struct {
	Seq       int64     `json:"seq" db:"seq"`
	ID        string    `json:"id" db:"id"`
	RoomID    string    `json:"room_id" db:"room_id"`
	Sender    UserRef   `json:"sender"`
	Content   string    `json:"content" db:"content"`
	Type      string    `json:"type" db:"type"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StatusChange is a presence transition returned by the tracker for the
// caller to broadcast.
type StatusChange struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
