package order

import (
	"slices"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusReceived  Status = "received"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusServed    Status = "served"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentEsewa  PaymentMethod = "esewa"
	PaymentKhalti PaymentMethod = "khalti"
	PaymentStripe PaymentMethod = "stripe"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

type Transaction struct {
	ID            string            `json:"id,omitempty"`
	TransactionID string            `json:"transaction_id"`
	Amount        int               `json:"amount"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Status        TransactionStatus `json:"status"`
}

// Settled reports whether the payment went through.
func (t *Transaction) Settled() bool {
	return t != nil && t.Status == TransactionSuccess
}

// Order is the detail view cached under ["order", id].
type Order struct {
	ID            string       `json:"id"`
	MessID        string       `json:"mess_id,omitempty"`
	TableID       string       `json:"table_id,omitempty"`
	CustomerID    string       `json:"customer_id,omitempty"`
	Status        Status       `json:"status"`
	IsCancelled   bool         `json:"is_cancelled"`
	IsPaid        bool         `json:"is_paid"`
	HasAddedItems bool         `json:"has_added_items"`
	TotalPrice    int          `json:"total_price"`
	Currency      string       `json:"currency,omitempty"`
	Items         []OrderItem  `json:"items"`
	Transaction   *Transaction `json:"transaction,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	MenuItemID  string `json:"menu_item_id"`
	Quantity    int    `json:"quantity"`
	TotalPrice  int    `json:"total_price"`
	IsCancelled bool   `json:"is_cancelled"`
}

// NewItem is the body of create-order and add-items calls; the server prices it.
type NewItem struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// ListEntry is one row of the mess-wide list cached under ["orders", messID].
type ListEntry struct {
	ID            string       `json:"id"`
	TableID       string       `json:"table_id,omitempty"`
	Status        Status       `json:"status"`
	TotalPrice    int          `json:"total_price"`
	IsPaid        bool         `json:"is_paid"`
	HasAddedItems bool         `json:"has_added_items"`
	Transaction   *Transaction `json:"transaction,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`

	// CancelledItemIDs and AddedItemIDs record item deltas already
	// applied to TotalPrice locally, so a repeated event is a no-op.
	CancelledItemIDs []string `json:"cancelled_item_ids,omitempty"`
	AddedItemIDs     []string `json:"added_item_ids,omitempty"`
}

// Popup is the per-table active order summary cached under ["order-popup", messID].
type Popup struct {
	ID         string `json:"id"`
	TotalPrice int    `json:"total_price"`
	Currency   string `json:"currency"`

	CancelledItemIDs []string `json:"cancelled_item_ids,omitempty"`
	AddedItemIDs     []string `json:"added_item_ids,omitempty"`
}

// Created is what create-order returns.
type Created struct {
	ID      string `json:"id"`
	TableID string `json:"table_id"`
	MessID  string `json:"mess_id"`
	Status  Status `json:"status"`
}

// Clone returns a deep copy; cached values are never mutated in place.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = slices.Clone(o.Items)
	if o.Transaction != nil {
		tx := *o.Transaction
		c.Transaction = &tx
	}
	return &c
}

func (o *Order) Item(id string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return OrderItem{}, false
}

// LiveItems returns the items that are not cancelled, in order.
func (o *Order) LiveItems() []OrderItem {
	live := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if !it.IsCancelled {
			live = append(live, it)
		}
	}
	return live
}

// LiveTotal sums the live item totals.
func (o *Order) LiveTotal() int {
	total := 0
	for _, it := range o.Items {
		if !it.IsCancelled {
			total += it.TotalPrice
		}
	}
	return total
}

// Summary projects the detail onto a list row, keeping the row's bookkeeping.
func (o *Order) Summary(prev ListEntry) ListEntry {
	e := prev
	e.ID = o.ID
	if o.TableID != "" {
		e.TableID = o.TableID
	}
	e.Status = o.Status
	e.TotalPrice = o.TotalPrice
	e.IsPaid = o.IsPaid
	e.HasAddedItems = e.HasAddedItems || o.HasAddedItems
	if o.Transaction != nil {
		tx := *o.Transaction
		e.Transaction = &tx
	}
	if !o.CreatedAt.IsZero() {
		e.CreatedAt = o.CreatedAt
	}
	return e
}

func (e ListEntry) clone() ListEntry {
	e.CancelledItemIDs = slices.Clone(e.CancelledItemIDs)
	e.AddedItemIDs = slices.Clone(e.AddedItemIDs)
	if e.Transaction != nil {
		tx := *e.Transaction
		e.Transaction = &tx
	}
	return e
}

func (p *Popup) Clone() *Popup {
	if p == nil {
		return nil
	}
	c := *p
	c.CancelledItemIDs = slices.Clone(p.CancelledItemIDs)
	c.AddedItemIDs = slices.Clone(p.AddedItemIDs)
	return &c
}

// CloneList deep-copies a list cache value.
func CloneList(list []ListEntry) []ListEntry {
	if list == nil {
		return nil
	}
	out := make([]ListEntry, len(list))
	for i, e := range list {
		out[i] = e.clone()
	}
	return out
}
