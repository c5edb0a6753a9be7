package cache

import "fmt"

const (
	KindOrder       = "order"
	KindOrders      = "orders"
	KindPopup       = "order-popup"
	KindMyOrders    = "my-orders"
	KindTransaction = "order-transaction"
)

// Key is a semantic query key such as ["order", id] or ["orders", messID].
type Key struct {
	Kind string
	ID   string
}

func (k Key) String() string {
	return fmt.Sprintf("[%q,%q]", k.Kind, k.ID)
}

// OrderKey addresses the full order detail, items included.
func OrderKey(orderID string) Key { return Key{Kind: KindOrder, ID: orderID} }

// OrdersKey addresses the list of incomplete orders of a mess.
func OrdersKey(messID string) Key { return Key{Kind: KindOrders, ID: messID} }

// PopupKey addresses the active order summary of the customer's table.
func PopupKey(messID string) Key { return Key{Kind: KindPopup, ID: messID} }

func MyOrdersKey(messID string) Key { return Key{Kind: KindMyOrders, ID: messID} }

func TransactionKey(transactionID string) Key {
	return Key{Kind: KindTransaction, ID: transactionID}
}
