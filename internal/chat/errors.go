package chat

import "errors"

var (
	ErrNotParticipant = errors.New("user is not a participant of this room")
)
