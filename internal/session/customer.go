package session

import (
	"context"
	"errors"

	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/channel"
	"mess-ordersync/internal/optimistic"
	"mess-ordersync/internal/order"
)

var ErrNoTable = errors.New("customer session has no table")

// Customer is the diner's client: one table, one followed order at a time.
type Customer struct {
	*base
	tableID string
}

func NewCustomer(messID, tableID string, deps Deps) (*Customer, error) {
	b, err := newBase(order.ActorCustomer, messID, deps)
	if err != nil {
		return nil, err
	}
	return &Customer{base: b, tableID: tableID}, nil
}

// Follow joins the room of orderID. Calling it again switches rooms.
func (c *Customer) Follow(ctx context.Context, orderID string) error {
	return c.follow(ctx, channel.Room{Type: channel.RoomOrder, ID: orderID})
}

func (c *Customer) SwitchOrder(ctx context.Context, orderID string) error {
	return c.Follow(ctx, orderID)
}

// Popup returns the table's active order, nil when there is none.
func (c *Customer) Popup(ctx context.Context) (*order.Popup, error) {
	if c.tableID == "" {
		return nil, ErrNoTable
	}
	return cache.FetchAs[*order.Popup](ctx, c.deps.Store, cache.PopupKey(c.messID))
}

func (c *Customer) MyOrders(ctx context.Context) ([]order.ListEntry, error) {
	return cache.FetchAs[[]order.ListEntry](ctx, c.deps.Store, cache.MyOrdersKey(c.messID))
}

// CreateOrder places a new order for the table.
func (c *Customer) CreateOrder(ctx context.Context, items []order.NewItem) (*order.Created, error) {
	if c.tableID == "" {
		return nil, ErrNoTable
	}
	if err := order.ValidateItems(items); err != nil {
		return nil, err
	}

	var created *order.Created
	err := c.deps.Coordinator.Run(ctx, optimistic.Mutation{
		Name: "create_order",
		Keys: []cache.Key{cache.PopupKey(c.messID), cache.MyOrdersKey(c.messID)},
		Remote: func(ctx context.Context) error {
			var err error
			created, err = c.deps.Remote.CreateOrder(ctx, c.tableID, items)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Customer) AddItems(ctx context.Context, orderID string, items []order.NewItem) error {
	return c.addItems(ctx, orderID, items)
}

func (c *Customer) CancelItem(ctx context.Context, orderID, itemID string) error {
	return c.cancelItem(ctx, orderID, itemID, func(ctx context.Context) error {
		return c.deps.Remote.CancelOrder(ctx, orderID)
	})
}

// CancelOrder cancels the whole order while it still has live items.
func (c *Customer) CancelOrder(ctx context.Context, orderID string) error {
	o, err := c.Order(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.Authorize(order.ActorCustomer, o, order.StatusCancelled); err != nil {
		return err
	}

	return c.run(ctx, orderID, optimistic.Mutation{
		Name:  "cancel_order",
		Apply: func(*cache.Store) { c.reducer.SetStatus(orderID, order.StatusCancelled) },
		Remote: func(ctx context.Context) error {
			return c.deps.Remote.CancelOrder(ctx, orderID)
		},
	})
}
