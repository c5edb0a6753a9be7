package reducer

import (
	"fmt"

	"go.uber.org/zap"

	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/logger"
	"mess-ordersync/internal/order"
)

// Reducer applies order deltas to every cached copy of an order. The
// same methods back the push event handlers and the optimistic writes,
// so both paths produce identical cache states.
type Reducer struct {
	store  *cache.Store
	messID string
	log    *zap.Logger
}

func New(store *cache.Store, messID string, log *zap.Logger) *Reducer {
	if log == nil {
		log = logger.Layer("reducer")
	}
	return &Reducer{store: store, messID: messID, log: log}
}

func (r *Reducer) Keys(orderID string) KeySet {
	return Keys(orderID, r.messID)
}

// patch runs fn on the cached T. Values of another type are a shape
// mismatch: they are left alone and logged.
func patch[T any](r *Reducer, key cache.Key, fn func(T) (T, bool)) bool {
	return r.store.Update(key, func(old any, ok bool) (any, bool) {
		if !ok || old == nil {
			return nil, false
		}
		typed, ok := old.(T)
		if !ok {
			r.log.Warn("cached value has unexpected shape, skipping patch",
				zap.Stringer("key", key),
				zap.String("type", fmt.Sprintf("%T", old)),
			)
			return nil, false
		}
		return fn(typed)
	})
}

func (r *Reducer) detail(orderID string) (*order.Order, bool) {
	o, ok := cache.GetAs[*order.Order](r.store, cache.OrderKey(orderID))
	return o, ok && o != nil
}

// syncSummaries copies the recomputed detail onto the list row and the
// popup so the three copies agree.
func (r *Reducer) syncSummaries(o *order.Order) {
	keys := r.Keys(o.ID)
	patch(r, keys.List, func(list []order.ListEntry) ([]order.ListEntry, bool) {
		return order.PatchEntry(list, o.ID, func(e order.ListEntry) (order.ListEntry, bool) {
			return e.WithDetail(o)
		})
	})
	patch(r, keys.Popup, func(p *order.Popup) (*order.Popup, bool) {
		return p.WithDetail(o)
	})
}

// CancelItem marks itemID cancelled. price is used for the summaries
// only when the detail is not cached.
func (r *Reducer) CancelItem(orderID, itemID string, price int) {
	keys := r.Keys(orderID)
	patch(r, keys.Detail, func(o *order.Order) (*order.Order, bool) {
		return order.WithItemCancelled(o, itemID)
	})

	if o, ok := r.detail(orderID); ok {
		r.syncSummaries(o)
		return
	}

	patch(r, keys.List, func(list []order.ListEntry) ([]order.ListEntry, bool) {
		return order.PatchEntry(list, orderID, func(e order.ListEntry) (order.ListEntry, bool) {
			return e.WithItemCancelled(itemID, price)
		})
	})
	patch(r, keys.Popup, func(p *order.Popup) (*order.Popup, bool) {
		if p == nil || p.ID != orderID {
			return p, false
		}
		return p.WithItemCancelled(itemID, price)
	})
}

// SetStatus moves the order to status on the detail and the list row.
func (r *Reducer) SetStatus(orderID string, status order.Status) {
	keys := r.Keys(orderID)
	patch(r, keys.Detail, func(o *order.Order) (*order.Order, bool) {
		return order.WithStatus(o, status)
	})
	patch(r, keys.List, func(list []order.ListEntry) ([]order.ListEntry, bool) {
		return order.PatchEntry(list, orderID, func(e order.ListEntry) (order.ListEntry, bool) {
			return e.WithStatus(status)
		})
	})
}

// MarkPaid flags the order paid, attaching tx when known.
func (r *Reducer) MarkPaid(orderID string, tx *order.Transaction) {
	keys := r.Keys(orderID)
	patch(r, keys.Detail, func(o *order.Order) (*order.Order, bool) {
		return order.WithPaid(o, tx)
	})
	patch(r, keys.List, func(list []order.ListEntry) ([]order.ListEntry, bool) {
		return order.PatchEntry(list, orderID, func(e order.ListEntry) (order.ListEntry, bool) {
			return e.WithPaid(tx)
		})
	})
}

// AddItems prepends priced items to the detail and adds them to the row
// and the popup.
func (r *Reducer) AddItems(orderID string, items []order.OrderItem) {
	keys := r.Keys(orderID)
	patch(r, keys.Detail, func(o *order.Order) (*order.Order, bool) {
		return order.WithItemsAdded(o, items)
	})

	o, hasDetail := r.detail(orderID)
	patch(r, keys.List, func(list []order.ListEntry) ([]order.ListEntry, bool) {
		return order.PatchEntry(list, orderID, func(e order.ListEntry) (order.ListEntry, bool) {
			next, added := e.WithItemsAdded(items)
			if !hasDetail {
				return next, added
			}
			next, synced := next.WithDetail(o)
			return next, added || synced
		})
	})
	patch(r, keys.Popup, func(p *order.Popup) (*order.Popup, bool) {
		if p == nil || p.ID != orderID {
			return p, false
		}
		if hasDetail {
			return p.WithDetail(o)
		}
		return p.WithItemsAdded(items)
	})
}

// AddOrder prepends a new row unless the list already has it.
func (r *Reducer) AddOrder(e order.ListEntry) {
	patch(r, cache.OrdersKey(r.messID), func(list []order.ListEntry) ([]order.ListEntry, bool) {
		return order.PrependEntry(list, e)
	})
}

// Agree reports the first disagreement between the cached detail and its
// summaries. Missing copies are not a disagreement.
func Agree(store *cache.Store, orderID, messID string) error {
	keys := Keys(orderID, messID)
	o, ok := cache.GetAs[*order.Order](store, keys.Detail)
	if !ok || o == nil {
		return nil
	}

	if list, ok := cache.GetAs[[]order.ListEntry](store, keys.List); ok {
		for _, e := range list {
			if e.ID != orderID {
				continue
			}
			if e.TotalPrice != o.TotalPrice {
				return fmt.Errorf("%w: list total %d, detail total %d", ErrDisagree, e.TotalPrice, o.TotalPrice)
			}
			if e.Status != o.Status {
				return fmt.Errorf("%w: list status %s, detail status %s", ErrDisagree, e.Status, o.Status)
			}
		}
	}

	if p, ok := cache.GetAs[*order.Popup](store, keys.Popup); ok && p != nil && p.ID == orderID {
		if p.TotalPrice != o.TotalPrice {
			return fmt.Errorf("%w: popup total %d, detail total %d", ErrDisagree, p.TotalPrice, o.TotalPrice)
		}
	}
	return nil
}
