package reducer

import (
	"mess-ordersync/internal/dispatch"
	"mess-ordersync/internal/events"
	"mess-ordersync/internal/order"
)

// OnCancelOrderItem handles an item cancelled by another actor.
func (r *Reducer) OnCancelOrderItem(p events.CancelOrderItemPayload) {
	r.CancelItem(p.OrderID, p.ID, p.TotalPrice)
}

func (r *Reducer) OnCancelOrder(p events.CancelOrderPayload) {
	r.SetStatus(p.ID, p.Status)
}

func (r *Reducer) OnAddOrder(p events.AddOrderPayload) {
	r.AddOrder(p.Entry())
}

func (r *Reducer) OnAddOrderItem(p events.AddOrderItemPayload) {
	r.AddItems(p.OrderID, p.Items)
}

func (r *Reducer) OnOrderPaid(p events.OrderPaidPayload) {
	r.MarkPaid(p.ID, p.Transaction)
}

// OnOrderUpdate patches only the detail; customers have no list.
func (r *Reducer) OnOrderUpdate(p events.OrderUpdatePayload) {
	patch(r, r.Keys(p.ID).Detail, func(o *order.Order) (*order.Order, bool) {
		next, changed := order.WithStatus(o, p.Status)
		if p.IsPaid != nil && *p.IsPaid && !next.IsPaid {
			next, _ = order.WithPaid(next, nil)
			changed = true
		}
		return next, changed
	})
}

// Register installs a handler for every order event of src and returns
// a func removing them all.
func (r *Reducer) Register(d *dispatch.Dispatcher, src dispatch.Source) func() {
	unsubscribe := []func(){
		dispatch.Listen(d, src, events.AddOrder, r.OnAddOrder),
		dispatch.Listen(d, src, events.CancelOrder, r.OnCancelOrder),
		dispatch.Listen(d, src, events.CancelOrderItem, r.OnCancelOrderItem),
		dispatch.Listen(d, src, events.AddOrderItem, r.OnAddOrderItem),
		dispatch.Listen(d, src, events.OrderPaid, r.OnOrderPaid),
		dispatch.Listen(d, src, events.OrderUpdate, r.OnOrderUpdate),
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}
