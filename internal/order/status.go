package order

import (
	"fmt"
	"slices"
)

// happyPath is the admin-driven progression. cancelled sits outside it
// and is reachable from every non-terminal state.
var happyPath = []Status{
	StatusPending,
	StatusReceived,
	StatusPreparing,
	StatusReady,
	StatusServed,
	StatusCompleted,
}

type Actor string

const (
	ActorAdmin    Actor = "admin"
	ActorCustomer Actor = "customer"
)

func (s Status) Valid() bool {
	return s == StatusCancelled || slices.Contains(happyPath, s)
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the following happy-path status.
func Next(s Status) (Status, bool) {
	i := slices.Index(happyPath, s)
	if i < 0 || i == len(happyPath)-1 {
		return "", false
	}
	return happyPath[i+1], true
}

// CanTransition reports whether from -> to is legal regardless of actor.
// Forward moves may skip steps; backward moves and self-loops are not allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return slices.Index(happyPath, to) > slices.Index(happyPath, from)
}

// Authorize checks a status change requested by actor against the
// current cached order. Server-side authorization still applies.
func Authorize(actor Actor, o *Order, to Status) error {
	if o == nil {
		return ErrOrderNotFound
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	switch actor {
	case ActorAdmin:
		return nil
	case ActorCustomer:
		if to != StatusCancelled {
			return ErrForbidden
		}
		if len(o.LiveItems()) == 0 {
			return ErrNoLiveItems
		}
		return nil
	default:
		return ErrForbidden
	}
}

// Derive recomputes the flags that follow from status and payment.
func Derive(o *Order) {
	o.IsCancelled = o.Status == StatusCancelled
	if o.Transaction.Settled() {
		o.IsPaid = true
	}
}

// CheckTotals verifies the settled-order invariants: the total equals
// the live item sum, and an order without live items is cancelled.
func CheckTotals(o *Order) error {
	if o == nil {
		return ErrOrderNotFound
	}
	if sum := o.LiveTotal(); sum != o.TotalPrice {
		return fmt.Errorf("%w: order %s total %d, live items sum %d", ErrInvariant, o.ID, o.TotalPrice, sum)
	}
	if len(o.Items) > 0 && len(o.LiveItems()) == 0 && o.Status != StatusCancelled {
		return fmt.Errorf("%w: order %s has no live items but status %s", ErrInvariant, o.ID, o.Status)
	}
	if o.IsCancelled != (o.Status == StatusCancelled) {
		return fmt.Errorf("%w: order %s is_cancelled=%t with status %s", ErrInvariant, o.ID, o.IsCancelled, o.Status)
	}
	return nil
}
