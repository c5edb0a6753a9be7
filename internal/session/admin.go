package session

import (
	"context"

	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/channel"
	"mess-ordersync/internal/optimistic"
	"mess-ordersync/internal/order"
)

// Admin is the mess dashboard: it follows every order of the mess.
type Admin struct {
	*base
}

func NewAdmin(messID string, deps Deps) (*Admin, error) {
	b, err := newBase(order.ActorAdmin, messID, deps)
	if err != nil {
		return nil, err
	}
	return &Admin{base: b}, nil
}

// Follow joins the mess order room and applies its events to the cache.
func (a *Admin) Follow(ctx context.Context) error {
	return a.follow(ctx, channel.Room{Type: channel.RoomAdminOrder, ID: a.messID})
}

// Orders returns the incomplete orders of the mess.
func (a *Admin) Orders(ctx context.Context) ([]order.ListEntry, error) {
	return cache.FetchAs[[]order.ListEntry](ctx, a.deps.Store, cache.OrdersKey(a.messID))
}

func (a *Admin) CancelItem(ctx context.Context, orderID, itemID string) error {
	return a.cancelItem(ctx, orderID, itemID, func(ctx context.Context) error {
		return a.deps.Remote.ChangeStatus(ctx, orderID, order.StatusCancelled, false)
	})
}

// ChangeStatus moves the order along the happy path or cancels it.
// Completion goes through Complete so payment is settled in the same call.
func (a *Admin) ChangeStatus(ctx context.Context, orderID string, to order.Status) error {
	if to == order.StatusCompleted {
		return a.Complete(ctx, orderID)
	}

	o, err := a.Order(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.Authorize(order.ActorAdmin, o, to); err != nil {
		return err
	}

	return a.run(ctx, orderID, optimistic.Mutation{
		Name:  "change_status",
		Apply: func(*cache.Store) { a.reducer.SetStatus(orderID, to) },
		Remote: func(ctx context.Context) error {
			return a.deps.Remote.ChangeStatus(ctx, orderID, to, false)
		},
	})
}

// Complete finishes the order, recording a cash payment in the same call
// unless an online payment already settled.
func (a *Admin) Complete(ctx context.Context, orderID string) error {
	o, err := a.Order(ctx, orderID)
	if err != nil {
		return err
	}
	markPaid, err := order.PlanComplete(o)
	if err != nil {
		return err
	}

	return a.run(ctx, orderID, optimistic.Mutation{
		Name: "complete",
		Apply: func(*cache.Store) {
			a.reducer.SetStatus(orderID, order.StatusCompleted)
			if markPaid {
				a.reducer.MarkPaid(orderID, nil)
			}
		},
		Remote: func(ctx context.Context) error {
			return a.deps.Remote.ChangeStatus(ctx, orderID, order.StatusCompleted, markPaid)
		},
	})
}

func (a *Admin) MarkPaid(ctx context.Context, orderID string) error {
	o, err := a.Order(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.CanMarkPaid(o); err != nil {
		return err
	}

	return a.run(ctx, orderID, optimistic.Mutation{
		Name:  "mark_paid",
		Apply: func(*cache.Store) { a.reducer.MarkPaid(orderID, nil) },
		Remote: func(ctx context.Context) error {
			return a.deps.Remote.MarkPaid(ctx, orderID)
		},
	})
}

func (a *Admin) AddItems(ctx context.Context, orderID string, items []order.NewItem) error {
	return a.addItems(ctx, orderID, items)
}
