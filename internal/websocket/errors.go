package websocket

import "errors"

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrBufferFull       = errors.New("write buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry errors.
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
)
