package order

import "slices"

// The With* helpers return patched copies and report whether anything
// changed. Applying the same patch twice is a no-op the second time.

// WithItemCancelled cancels itemID and subtracts its last-known price.
// Cancelling the last live item cascades the order to cancelled.
func WithItemCancelled(o *Order, itemID string) (*Order, bool) {
	if o == nil {
		return nil, false
	}
	idx := slices.IndexFunc(o.Items, func(it OrderItem) bool { return it.ID == itemID })
	if idx < 0 || o.Items[idx].IsCancelled {
		return o, false
	}

	c := o.Clone()
	c.Items[idx].IsCancelled = true
	c.TotalPrice -= c.Items[idx].TotalPrice
	if len(c.LiveItems()) == 0 && !c.Status.IsTerminal() {
		c.Status = StatusCancelled
	}
	Derive(c)
	return c, true
}

func WithStatus(o *Order, s Status) (*Order, bool) {
	if o == nil || o.Status == s {
		return o, false
	}
	c := o.Clone()
	c.Status = s
	Derive(c)
	return c, true
}

// WithPaid marks the order paid, attaching tx when the event carried one.
func WithPaid(o *Order, tx *Transaction) (*Order, bool) {
	if o == nil {
		return nil, false
	}
	if o.IsPaid && (tx == nil || (o.Transaction != nil && *o.Transaction == *tx)) {
		return o, false
	}
	c := o.Clone()
	c.IsPaid = true
	if tx != nil {
		t := *tx
		c.Transaction = &t
	}
	return c, true
}

// WithItemsAdded prepends items the cached order does not know yet.
func WithItemsAdded(o *Order, items []OrderItem) (*Order, bool) {
	if o == nil {
		return nil, false
	}
	fresh := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if _, known := o.Item(it.ID); known || slices.ContainsFunc(fresh, func(f OrderItem) bool { return f.ID == it.ID }) {
			continue
		}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return o, false
	}

	c := o.Clone()
	c.Items = append(fresh, c.Items...)
	for _, it := range fresh {
		if !it.IsCancelled {
			c.TotalPrice += it.TotalPrice
		}
	}
	c.HasAddedItems = true
	return c, true
}

// WithItemCancelled subtracts price once per item id.
func (e ListEntry) WithItemCancelled(itemID string, price int) (ListEntry, bool) {
	if slices.Contains(e.CancelledItemIDs, itemID) {
		return e, false
	}
	c := e.clone()
	c.TotalPrice -= price
	c.CancelledItemIDs = append(c.CancelledItemIDs, itemID)
	return c, true
}

// WithDetail copies the shared fields from the detail view and records
// the detail's cancelled items in the bookkeeping set.
func (e ListEntry) WithDetail(o *Order) (ListEntry, bool) {
	c := o.Summary(e.clone())
	for _, it := range o.Items {
		if it.IsCancelled && !slices.Contains(c.CancelledItemIDs, it.ID) {
			c.CancelledItemIDs = append(c.CancelledItemIDs, it.ID)
		}
	}
	return c, !entryEqual(e, c)
}

func (e ListEntry) WithStatus(s Status) (ListEntry, bool) {
	if e.Status == s {
		return e, false
	}
	c := e.clone()
	c.Status = s
	return c, true
}

func (e ListEntry) WithPaid(tx *Transaction) (ListEntry, bool) {
	if e.IsPaid && tx == nil {
		return e, false
	}
	c := e.clone()
	c.IsPaid = true
	if tx != nil {
		t := *tx
		c.Transaction = &t
	}
	return c, !entryEqual(e, c)
}

// WithItemsAdded adds the prices of items not seen before and flags the row.
func (e ListEntry) WithItemsAdded(items []OrderItem) (ListEntry, bool) {
	c := e.clone()
	for _, it := range items {
		if slices.Contains(c.AddedItemIDs, it.ID) {
			continue
		}
		c.AddedItemIDs = append(c.AddedItemIDs, it.ID)
		if !it.IsCancelled {
			c.TotalPrice += it.TotalPrice
		}
	}
	if len(items) > 0 {
		c.HasAddedItems = true
	}
	return c, !entryEqual(e, c)
}

func entryEqual(a, b ListEntry) bool {
	if a.ID != b.ID || a.TableID != b.TableID || a.Status != b.Status ||
		a.TotalPrice != b.TotalPrice || a.IsPaid != b.IsPaid ||
		a.HasAddedItems != b.HasAddedItems || !a.CreatedAt.Equal(b.CreatedAt) ||
		!slices.Equal(a.CancelledItemIDs, b.CancelledItemIDs) ||
		!slices.Equal(a.AddedItemIDs, b.AddedItemIDs) {
		return false
	}
	if (a.Transaction == nil) != (b.Transaction == nil) {
		return false
	}
	return a.Transaction == nil || *a.Transaction == *b.Transaction
}

// PatchEntry applies fn to the row with the given id.
func PatchEntry(list []ListEntry, id string, fn func(ListEntry) (ListEntry, bool)) ([]ListEntry, bool) {
	idx := slices.IndexFunc(list, func(e ListEntry) bool { return e.ID == id })
	if idx < 0 {
		return list, false
	}
	next, changed := fn(list[idx])
	if !changed {
		return list, false
	}
	out := slices.Clone(list)
	out[idx] = next
	return out, true
}

// PrependEntry adds e at the head unless a row with its id exists.
func PrependEntry(list []ListEntry, e ListEntry) ([]ListEntry, bool) {
	if slices.ContainsFunc(list, func(x ListEntry) bool { return x.ID == e.ID }) {
		return list, false
	}
	out := make([]ListEntry, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...), true
}

func (p *Popup) WithItemCancelled(itemID string, price int) (*Popup, bool) {
	if p == nil || slices.Contains(p.CancelledItemIDs, itemID) {
		return p, false
	}
	c := p.Clone()
	c.TotalPrice -= price
	c.CancelledItemIDs = append(c.CancelledItemIDs, itemID)
	return c, true
}

// WithItemsAdded adds the prices of items not seen before.
func (p *Popup) WithItemsAdded(items []OrderItem) (*Popup, bool) {
	if p == nil {
		return p, false
	}
	c := p.Clone()
	for _, it := range items {
		if slices.Contains(c.AddedItemIDs, it.ID) {
			continue
		}
		c.AddedItemIDs = append(c.AddedItemIDs, it.ID)
		if !it.IsCancelled {
			c.TotalPrice += it.TotalPrice
		}
	}
	return c, len(c.AddedItemIDs) != len(p.AddedItemIDs)
}

// WithDetail copies the total from the detail view.
func (p *Popup) WithDetail(o *Order) (*Popup, bool) {
	if p == nil || p.ID != o.ID {
		return p, false
	}
	c := p.Clone()
	c.TotalPrice = o.TotalPrice
	for _, it := range o.Items {
		if it.IsCancelled && !slices.Contains(c.CancelledItemIDs, it.ID) {
			c.CancelledItemIDs = append(c.CancelledItemIDs, it.ID)
		}
	}
	changed := c.TotalPrice != p.TotalPrice || !slices.Equal(c.CancelledItemIDs, p.CancelledItemIDs)
	return c, changed
}
