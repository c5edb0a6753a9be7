package optimistic

import "errors"

var (
	ErrUnknownPolicy = errors.New("unknown mutation policy")
	ErrPanicked      = errors.New("mutation panicked")
)
