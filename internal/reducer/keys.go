package reducer

import "mess-ordersync/internal/cache"

// KeySet is every cache key that denormalizes one order.
type KeySet struct {
	OrderID string
	Detail  cache.Key
	List    cache.Key
	// Popup is touched only when the cached popup is for OrderID.
	Popup cache.Key
}

func Keys(orderID, messID string) KeySet {
	return KeySet{
		OrderID: orderID,
		Detail:  cache.OrderKey(orderID),
		List:    cache.OrdersKey(messID),
		Popup:   cache.PopupKey(messID),
	}
}

func (k KeySet) All() []cache.Key {
	return []cache.Key{k.Detail, k.List, k.Popup}
}
