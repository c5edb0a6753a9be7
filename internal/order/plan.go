package order

type Action int

const (
	ActionCancelItem Action = iota + 1
	ActionCancelOrder
)

func (a Action) String() string {
	switch a {
	case ActionCancelItem:
		return "cancel_item"
	case ActionCancelOrder:
		return "cancel_order"
	default:
		return "unknown"
	}
}

// PlanItemCancel decides how to cancel itemID. Cancelling the last live
// item is re-expressed as cancelling the whole order, so the order never
// sits in a non-terminal status with zero live items.
func PlanItemCancel(o *Order, itemID string) (Action, error) {
	if o == nil {
		return 0, ErrOrderNotFound
	}
	if o.Status.IsTerminal() {
		return 0, ErrOrderTerminal
	}

	item, ok := o.Item(itemID)
	if !ok {
		return 0, ErrItemNotFound
	}
	if item.IsCancelled {
		return 0, ErrItemAlreadyCancelled
	}

	if len(o.LiveItems()) == 1 {
		return ActionCancelOrder, nil
	}
	return ActionCancelItem, nil
}

// PlanComplete validates completion and reports whether the same call
// must also record an offline (cash) payment.
func PlanComplete(o *Order) (markPaid bool, err error) {
	if o == nil {
		return false, ErrOrderNotFound
	}
	if o.Status.IsTerminal() {
		return false, ErrOrderTerminal
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return false, ErrInvalidTransition
	}
	return !o.IsPaid && !o.Transaction.Settled(), nil
}

// CanMarkPaid guards the standalone mark-paid affordance.
func CanMarkPaid(o *Order) error {
	if o == nil {
		return ErrOrderNotFound
	}
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	return nil
}

// CanAddItems mirrors the server rule that only pending or received
// orders accept new items.
func CanAddItems(o *Order, items []NewItem) error {
	if o == nil {
		return ErrOrderNotFound
	}
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	if o.Status != StatusPending && o.Status != StatusReceived {
		return ErrItemsLocked
	}
	return ValidateItems(items)
}

func ValidateItems(items []NewItem) error {
	if len(items) == 0 {
		return ErrInvalidQuantity
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}
