package interfaces

import (
	"context"
	"time"

	"nestchat/pkg/types"
)

// ChatStore is the durable room directory plus message log. The store, not
// its callers, is responsible for the atomicity of "append message + update
// room pointer" and for serializing get-or-create so a concurrent pair of
// calls cannot mint duplicate rooms.
type ChatStore interface {
	// GetOrCreateRoom returns the room for the unordered participant pair
	// and listing ref, creating it when absent. The second result reports
	// whether a new room was created.
	GetOrCreateRoom(ctx context.Context, userA, userB, propertyID string) (*types.Room, bool, error)

	// GetRoom returns a room by id or ErrRoomNotFound.
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)

	// GetRoomSummary returns the populated view of one room.
	GetRoomSummary(ctx context.Context, roomID string) (*types.RoomSummary, error)

	// ListRoomsForUser returns populated rooms where userID is a
	// participant, ordered by updated_at descending.
	ListRoomsForUser(ctx context.Context, userID string) ([]*types.RoomSummary, error)

	// AppendMessage persists a message with a server-assigned id, seq and
	// timestamp, and touches the room pointer in the same transaction.
	AppendMessage(ctx context.Context, roomID, senderID, content, msgType string) (*types.Message, error)

	// ListMessagesPage returns page N (1-based) of a room's history,
	// paginated newest-first at the page level with rows in ascending
	// persistence order inside the page.
	ListMessagesPage(ctx context.Context, roomID string, page, limit int) ([]*types.Message, error)

	// MarkMessagesRead flips read=true on all unread messages in the room
	// not sent by excludeSender. Returns the number of rows flipped.
	MarkMessagesRead(ctx context.Context, roomID, excludeSender string) (int64, error)
}

// PresenceStore persists the per-user online flag. Only the presence
// tracker writes through it.
type PresenceStore interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

// UserDirectory resolves external identities to display data.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*types.User, error)
}

// ListingDirectory resolves a listing ref to its display summary.
// A missing listing is not an error; it returns (nil, nil).
type ListingDirectory interface {
	GetListingSummary(ctx context.Context, propertyID string) (*types.ListingSummary, error)
}

// SessionVerifier is the external "verify session token" collaborator.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}
