package order

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrItemNotFound         = errors.New("order item not found")
	ErrItemAlreadyCancelled = errors.New("order item already cancelled")
	ErrOrderTerminal        = errors.New("order is completed or cancelled")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrForbidden            = errors.New("action not allowed for this actor")
	ErrNoLiveItems          = errors.New("order has no items left")
	ErrItemsLocked          = errors.New("items can only be added to pending or received orders")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvariant            = errors.New("order invariant violated")
)
