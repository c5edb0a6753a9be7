package events

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Name is the wire name of a push event.
type Name string

const (
	NameAddOrder        Name = "add_order"
	NameCancelOrder     Name = "cancel_order"
	NameCancelOrderItem Name = "cancel_order_item"
	NameAddOrderItem    Name = "add_order_item"
	NameOrderPaid       Name = "order_paid"
	NameOrderUpdate     Name = "order_update"

	// NameJoinRoom is the control frame a client sends right after connecting.
	NameJoinRoom Name = "join_room"
)

var business = []Name{
	NameAddOrder,
	NameCancelOrder,
	NameCancelOrderItem,
	NameAddOrderItem,
	NameOrderPaid,
	NameOrderUpdate,
}

// Names lists every business event in a stable order.
func Names() []Name { return slices.Clone(business) }

func (n Name) Known() bool { return slices.Contains(business, n) }

// Payload is implemented by every event body.
type Payload interface {
	Validate() error
}

// Kind ties an event name to its payload type. The set of kinds is
// closed: only the variables below exist.
type Kind[P Payload] struct {
	name Name
}

func (k Kind[P]) Name() Name { return k.name }

// Decode unmarshals and validates raw into P.
func (k Kind[P]) Decode(raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, fmt.Errorf("%s: %w", k.name, ErrEmptyPayload)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%s: %w: %v", k.name, ErrMalformedPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%s: %w", k.name, err)
	}
	return p, nil
}

// Encode validates p and builds the frame carrying it.
func (k Kind[P]) Encode(p P) (Frame, error) {
	if err := p.Validate(); err != nil {
		return Frame{}, fmt.Errorf("%s: %w", k.name, err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return Frame{}, fmt.Errorf("%s: %w", k.name, err)
	}
	return Frame{Event: k.name, Data: data}, nil
}

var (
	AddOrder        = Kind[AddOrderPayload]{name: NameAddOrder}
	CancelOrder     = Kind[CancelOrderPayload]{name: NameCancelOrder}
	CancelOrderItem = Kind[CancelOrderItemPayload]{name: NameCancelOrderItem}
	AddOrderItem    = Kind[AddOrderItemPayload]{name: NameAddOrderItem}
	OrderPaid       = Kind[OrderPaidPayload]{name: NameOrderPaid}
	OrderUpdate     = Kind[OrderUpdatePayload]{name: NameOrderUpdate}

	JoinRoom = Kind[JoinPayload]{name: NameJoinRoom}
)

// Frame is one websocket message: {"event": name, "data": payload}.
type Frame struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
