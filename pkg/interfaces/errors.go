package interfaces

import "errors"

// Shared sentinel errors crossing component boundaries.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrUserNotFound = errors.New("user not found")
)
