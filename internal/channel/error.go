package channel

import "errors"

var (
	ErrMissingURL   = errors.New("push url is required")
	ErrInvalidRoom  = errors.New("invalid room")
	ErrNotConnected = errors.New("channel not connected")
	ErrClosed       = errors.New("channel closed")
)
