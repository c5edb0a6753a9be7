package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mess-ordersync/internal/order"
)

func TestKind_Decode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		p, err := CancelOrderItem.Decode(json.RawMessage(`{"id":"i1","order_id":"o1","total_price":7}`))
		require.NoError(t, err)
		assert.Equal(t, CancelOrderItemPayload{ID: "i1", OrderID: "o1", TotalPrice: 7}, p)
	})

	t.Run("Wrong field type", func(t *testing.T) {
		_, err := CancelOrderItem.Decode(json.RawMessage(`{"id":"i1","order_id":"o1","total_price":"7"}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("Missing field", func(t *testing.T) {
		_, err := CancelOrderItem.Decode(json.RawMessage(`{"id":"i1","total_price":7}`))
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := OrderPaid.Decode(nil)
		assert.ErrorIs(t, err, ErrEmptyPayload)
		_, err = OrderPaid.Decode(json.RawMessage(`null`))
		assert.ErrorIs(t, err, ErrEmptyPayload)
	})

	t.Run("Array instead of object", func(t *testing.T) {
		_, err := AddOrder.Decode(json.RawMessage(`[1,2]`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr error
	}{
		{"AddOrder ok", AddOrderPayload{ID: "o1", Status: order.StatusPending}, nil},
		{"AddOrder bad status", AddOrderPayload{ID: "o1", Status: "lost"}, ErrInvalidField},
		{"AddOrder negative total", AddOrderPayload{ID: "o1", TotalPrice: -1}, ErrInvalidField},
		{"CancelOrder terminal", CancelOrderPayload{ID: "o1", Status: order.StatusCompleted}, nil},
		{"CancelOrder not terminal", CancelOrderPayload{ID: "o1", Status: order.StatusReady}, ErrInvalidField},
		{"AddOrderItem no items", AddOrderItemPayload{OrderID: "o1"}, ErrMissingField},
		{"AddOrderItem bad quantity", AddOrderItemPayload{OrderID: "o1", Items: []order.OrderItem{{ID: "i1"}}}, ErrInvalidField},
		{"AddOrderItem ok", AddOrderItemPayload{OrderID: "o1", Items: []order.OrderItem{{ID: "i1", Quantity: 1}}}, nil},
		{"OrderPaid no id", OrderPaidPayload{}, ErrMissingField},
		{"OrderUpdate bad status", OrderUpdatePayload{ID: "o1"}, ErrInvalidField},
		{"Join missing room", JoinPayload{RoomType: "order"}, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestKind_Encode(t *testing.T) {
	frame, err := JoinRoom.Encode(JoinPayload{RoomType: "order", RoomID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, NameJoinRoom, frame.Event)
	assert.JSONEq(t, `{"room_type":"order","room_id":"o1"}`, string(frame.Data))

	_, err = JoinRoom.Encode(JoinPayload{})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestNames(t *testing.T) {
	assert.Len(t, Names(), 6)
	assert.True(t, NameOrderPaid.Known())
	assert.False(t, NameJoinRoom.Known())
	assert.False(t, Name("unknown").Known())
}

func TestAddOrderPayload_Entry(t *testing.T) {
	e := AddOrderPayload{ID: "o1", TableID: "t1", TotalPrice: 300}.Entry()
	assert.Equal(t, order.StatusPending, e.Status)
	assert.Equal(t, 300, e.TotalPrice)
}
