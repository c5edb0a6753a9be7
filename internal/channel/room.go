package channel

import (
	"fmt"

	"mess-ordersync/internal/events"
)

type RoomType string

const (
	// RoomAdminOrder receives every order event of a mess.
	RoomAdminOrder RoomType = "admin_order"
	// RoomAdminTable receives table occupancy events of a mess.
	RoomAdminTable RoomType = "admin_table"
	// RoomOrder receives the events of a single order.
	RoomOrder RoomType = "order"
)

type Room struct {
	Type RoomType
	ID   string
}

func (r Room) Validate() error {
	switch r.Type {
	case RoomAdminOrder, RoomAdminTable, RoomOrder:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRoom, r.Type)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRoom)
	}
	return nil
}

func (r Room) String() string {
	return string(r.Type) + ":" + r.ID
}

func (r Room) join() events.JoinPayload {
	return events.JoinPayload{RoomType: string(r.Type), RoomID: r.ID}
}
