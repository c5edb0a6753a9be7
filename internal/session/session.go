package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/channel"
	"mess-ordersync/internal/dispatch"
	"mess-ordersync/internal/logger"
	"mess-ordersync/internal/optimistic"
	"mess-ordersync/internal/order"
	"mess-ordersync/internal/reducer"
)

var (
	ErrNotConfirmed = errors.New("cancellation not confirmed")
	ErrMissingDeps  = errors.New("session dependency missing")
)

// Remote is the part of the order service the sessions write to.
// *api.Client implements it.
type Remote interface {
	CancelItem(ctx context.Context, actor order.Actor, orderID, itemID string) error
	ChangeStatus(ctx context.Context, orderID string, status order.Status, markPaid bool) error
	CancelOrder(ctx context.Context, orderID string) error
	MarkPaid(ctx context.Context, orderID string) error
	CreateOrder(ctx context.Context, tableID string, items []order.NewItem) (*order.Created, error)
	AddItems(ctx context.Context, orderID string, items []order.NewItem) error
}

// Confirmer asks the user before an irreversible action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

type Deps struct {
	Store       *cache.Store
	Remote      Remote
	Channels    *channel.Manager
	Dispatcher  *dispatch.Dispatcher
	Coordinator *optimistic.Coordinator
	// Confirmer defaults to declining.
	Confirmer Confirmer
	Logger    *zap.Logger
}

func (d *Deps) validate() error {
	if d.Store == nil || d.Remote == nil || d.Channels == nil {
		return ErrMissingDeps
	}
	if d.Dispatcher == nil {
		d.Dispatcher = dispatch.New(nil)
	}
	if d.Coordinator == nil {
		d.Coordinator = optimistic.NewCoordinator(d.Store)
	}
	if d.Confirmer == nil {
		d.Confirmer = ConfirmFunc(func(context.Context, string) bool { return false })
	}
	return nil
}

// base holds what admin and customer sessions share: one push handle,
// the reducers bound to it and the mutation plumbing.
type base struct {
	deps    Deps
	actor   order.Actor
	messID  string
	reducer *reducer.Reducer
	log     *zap.Logger

	mu         sync.Mutex
	handle     *channel.Handle
	unregister func()
}

func newBase(actor order.Actor, messID string, deps Deps) (*base, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = logger.Layer("session")
	}
	log = log.With(zap.String("actor", string(actor)), zap.String("mess_id", messID))

	return &base{
		deps:    deps,
		actor:   actor,
		messID:  messID,
		reducer: reducer.New(deps.Store, messID, log),
		log:     log,
	}, nil
}

// follow joins room, or moves the existing handle there. Connection
// failures are returned for information only; the handle keeps retrying.
func (b *base) follow(ctx context.Context, room channel.Room) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handle != nil {
		return b.deps.Channels.SwitchRoom(ctx, b.handle, room)
	}

	h, err := b.deps.Channels.Connect(ctx, room)
	if h != nil {
		b.handle = h
		b.unregister = b.reducer.Register(b.deps.Dispatcher, h)
	}
	if err != nil {
		b.log.Warn("push channel not connected yet", zap.Stringer("room", room), zap.Error(err))
	}
	return err
}

// Connected reports the push channel state.
func (b *base) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle != nil && b.handle.IsConnected()
}

// Close leaves the room and removes the event handlers.
func (b *base) Close() {
	b.mu.Lock()
	h, unregister := b.handle, b.unregister
	b.handle, b.unregister = nil, nil
	b.mu.Unlock()

	if unregister != nil {
		unregister()
	}
	if h != nil {
		b.deps.Channels.Disconnect(h)
	}
}

func (b *base) Order(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := cache.FetchAs[*order.Order](ctx, b.deps.Store, cache.OrderKey(orderID))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (b *base) run(ctx context.Context, orderID string, m optimistic.Mutation) error {
	m.Scope = orderID
	if m.Keys == nil {
		m.Keys = b.reducer.Keys(orderID).All()
	}
	return b.deps.Coordinator.Run(logger.WithOrderID(ctx, orderID), m)
}

// cancelItem applies the cascade rule: cancelling the last live item is
// sent as an order cancellation, after confirmation.
func (b *base) cancelItem(ctx context.Context, orderID, itemID string, cancelOrder func(ctx context.Context) error) error {
	o, err := b.Order(ctx, orderID)
	if err != nil {
		return err
	}

	action, err := order.PlanItemCancel(o, itemID)
	if err != nil {
		return err
	}

	if action == order.ActionCancelOrder {
		if !b.deps.Confirmer.Confirm(ctx, "Cancelling the last item cancels the whole order. Continue?") {
			return ErrNotConfirmed
		}
		return b.run(ctx, orderID, optimistic.Mutation{
			Name:   action.String(),
			Apply:  func(*cache.Store) { b.reducer.SetStatus(orderID, order.StatusCancelled) },
			Remote: cancelOrder,
		})
	}

	item, _ := o.Item(itemID)
	return b.run(ctx, orderID, optimistic.Mutation{
		Name:  action.String(),
		Apply: func(*cache.Store) { b.reducer.CancelItem(orderID, itemID, item.TotalPrice) },
		Remote: func(ctx context.Context) error {
			return b.deps.Remote.CancelItem(ctx, b.actor, orderID, itemID)
		},
	})
}

func (b *base) addItems(ctx context.Context, orderID string, items []order.NewItem) error {
	o, err := b.Order(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.CanAddItems(o, items); err != nil {
		return err
	}

	// prices come from the server, so there is nothing to speculate
	return b.run(ctx, orderID, optimistic.Mutation{
		Name: "add_items",
		Remote: func(ctx context.Context) error {
			return b.deps.Remote.AddItems(ctx, orderID, items)
		},
	})
}
