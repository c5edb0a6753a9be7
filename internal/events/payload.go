package events

import (
	"fmt"
	"time"

	"mess-ordersync/internal/order"
)

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return nil
}

// AddOrderPayload announces a new order of the mess.
type AddOrderPayload struct {
	ID         string       `json:"id"`
	TableID    string       `json:"table_id"`
	Status     order.Status `json:"status"`
	TotalPrice int          `json:"total_price"`
	IsPaid     bool         `json:"is_paid"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (p AddOrderPayload) Validate() error {
	if err := required("id", p.ID); err != nil {
		return err
	}
	if p.Status != "" && !p.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidField, p.Status)
	}
	if p.TotalPrice < 0 {
		return fmt.Errorf("%w: total_price %d", ErrInvalidField, p.TotalPrice)
	}
	return nil
}

// Entry converts the announcement into a list row.
func (p AddOrderPayload) Entry() order.ListEntry {
	status := p.Status
	if status == "" {
		status = order.StatusPending
	}
	return order.ListEntry{
		ID:         p.ID,
		TableID:    p.TableID,
		Status:     status,
		TotalPrice: p.TotalPrice,
		IsPaid:     p.IsPaid,
		CreatedAt:  p.CreatedAt,
	}
}

// CancelOrderPayload reports an order that reached a terminal state.
type CancelOrderPayload struct {
	ID     string       `json:"id"`
	Status order.Status `json:"status"`
}

func (p CancelOrderPayload) Validate() error {
	if err := required("id", p.ID); err != nil {
		return err
	}
	if !p.Status.IsTerminal() {
		return fmt.Errorf("%w: status %q is not terminal", ErrInvalidField, p.Status)
	}
	return nil
}

// CancelOrderItemPayload reports one cancelled item. TotalPrice is the
// item's price, the amount to take off the order.
type CancelOrderItemPayload struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	TotalPrice int    `json:"total_price"`
}

func (p CancelOrderItemPayload) Validate() error {
	if err := required("id", p.ID); err != nil {
		return err
	}
	if err := required("order_id", p.OrderID); err != nil {
		return err
	}
	if p.TotalPrice < 0 {
		return fmt.Errorf("%w: total_price %d", ErrInvalidField, p.TotalPrice)
	}
	return nil
}

// AddOrderItemPayload carries the items appended to an order.
type AddOrderItemPayload struct {
	OrderID string            `json:"order_id"`
	Items   []order.OrderItem `json:"items"`
}

func (p AddOrderItemPayload) Validate() error {
	if err := required("order_id", p.OrderID); err != nil {
		return err
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: items", ErrMissingField)
	}
	for _, it := range p.Items {
		if it.ID == "" {
			return fmt.Errorf("%w: items[].id", ErrMissingField)
		}
		if it.Quantity <= 0 || it.TotalPrice < 0 {
			return fmt.Errorf("%w: item %s", ErrInvalidField, it.ID)
		}
	}
	return nil
}

// OrderPaidPayload reports a settled payment.
type OrderPaidPayload struct {
	ID          string             `json:"id"`
	Transaction *order.Transaction `json:"transaction,omitempty"`
}

func (p OrderPaidPayload) Validate() error {
	return required("id", p.ID)
}

// OrderUpdatePayload is the customer-channel status change.
type OrderUpdatePayload struct {
	ID     string       `json:"id"`
	Status order.Status `json:"status"`
	IsPaid *bool        `json:"is_paid,omitempty"`
}

func (p OrderUpdatePayload) Validate() error {
	if err := required("id", p.ID); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidField, p.Status)
	}
	return nil
}

// JoinPayload is the body of the join_room control frame.
type JoinPayload struct {
	RoomType string `json:"room_type"`
	RoomID   string `json:"room_id"`
}

func (p JoinPayload) Validate() error {
	if err := required("room_type", p.RoomType); err != nil {
		return err
	}
	return required("room_id", p.RoomID)
}
