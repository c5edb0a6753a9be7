package api

import (
	"context"

	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/order"
)

// Viewer describes who the cache is fetching for.
type Viewer struct {
	Actor order.Actor
	// TableID scopes the popup query; customers only.
	TableID string
}

// RegisterFetchers installs the loaders for every cache kind. List and
// popup keys are addressed by mess id while the client is bound to one
// mess, so the key id is only used for order and transaction lookups.
func RegisterFetchers(store *cache.Store, c *Client, v Viewer) {
	store.Register(cache.KindOrder, func(ctx context.Context, key cache.Key) (any, error) {
		return c.Order(ctx, v.Actor, key.ID)
	})

	store.Register(cache.KindOrders, func(ctx context.Context, _ cache.Key) (any, error) {
		return c.IncompleteOrders(ctx)
	})

	store.Register(cache.KindMyOrders, func(ctx context.Context, _ cache.Key) (any, error) {
		return c.MyOrders(ctx)
	})

	store.Register(cache.KindTransaction, func(ctx context.Context, key cache.Key) (any, error) {
		return c.Transaction(ctx, key.ID)
	})

	if v.TableID == "" {
		return
	}
	store.Register(cache.KindPopup, func(ctx context.Context, _ cache.Key) (any, error) {
		p, err := c.Popup(ctx, v.TableID)
		if err != nil || p == nil {
			// a typed nil would be cached as a present value
			return nil, err
		}
		return p, nil
	})
}
