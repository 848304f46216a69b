package presence

import (
	"context"
	"time"

	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

// Tracker owns the online/offline flag per user. It is the only writer of
// is_online and last_seen. Each connect and disconnect is applied
// independently (last writer wins): a user with several devices flickers
// offline when any one of them drops. Per-user connection reference
// counting would fix it but changes observable behavior, so it stays out
// pending a product call.
type Tracker struct {
	store interfaces.PresenceStore
}

// NewTracker creates a presence tracker over the durable store.
func NewTracker(store interfaces.PresenceStore) *Tracker {
	return &Tracker{store: store}
}

// SetOnline marks the user online and returns the change for broadcast.
func (t *Tracker) SetOnline(ctx context.Context, userID string) (types.StatusChange, error) {
	if err := t.store.SetUserOnline(ctx, userID); err != nil {
		return types.StatusChange{}, err
	}
	return types.StatusChange{UserID: userID, IsOnline: true}, nil
}

// SetOffline marks the user offline with a last-seen timestamp and returns
// the change for broadcast.
func (t *Tracker) SetOffline(ctx context.Context, userID string) (types.StatusChange, error) {
	lastSeen := time.Now().UTC()
	if err := t.store.SetUserOffline(ctx, userID, lastSeen); err != nil {
		return types.StatusChange{}, err
	}
	return types.StatusChange{UserID: userID, IsOnline: false, LastSeen: &lastSeen}, nil
}
