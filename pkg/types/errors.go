package types

import "errors"

// Validation errors shared across the realtime and REST surfaces.
var (
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content exceeds 4096 bytes")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidRoomID      = errors.New("invalid room id")
)
