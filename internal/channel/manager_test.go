package channel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mess-ordersync/internal/auth"
	"mess-ordersync/internal/events"
	"mess-ordersync/internal/pushtest"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	frames []events.Frame
}

func (r *recorder) add(f events.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) all() []events.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Frame(nil), r.frames...)
}

func newTestManager(t *testing.T, srv *pushtest.Server, opts Options) *Manager {
	t.Helper()
	opts.URL = srv.URL()
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 20 * time.Millisecond
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = time.Second
	}
	opts.Logger = zap.NewNop()

	m, err := NewManager(opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func itemCancelled(id string) events.CancelOrderItemPayload {
	return events.CancelOrderItemPayload{ID: id, OrderID: "o1", TotalPrice: 7}
}

func TestRoom_Validate(t *testing.T) {
	assert.NoError(t, Room{Type: RoomOrder, ID: "o1"}.Validate())
	assert.NoError(t, Room{Type: RoomAdminTable, ID: "m1"}.Validate())
	assert.ErrorIs(t, Room{Type: "kitchen", ID: "m1"}.Validate(), ErrInvalidRoom)
	assert.ErrorIs(t, Room{Type: RoomAdminOrder}.Validate(), ErrInvalidRoom)
	assert.Equal(t, "order:o1", Room{Type: RoomOrder, ID: "o1"}.String())
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(Options{})
	assert.ErrorIs(t, err, ErrMissingURL)

	m, err := NewManager(Options{URL: "ws://push.test", Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, DefaultConnectTimeout, m.opts.ConnectTimeout)
	assert.Equal(t, DefaultReconnectDelay, m.opts.ReconnectDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, m.opts.MaxReconnectAttempts)
}

func TestManager_ConnectJoinsRoom(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{Token: "tok-1"})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)
	assert.True(t, h.IsConnected())
	assert.True(t, <-h.States())

	require.True(t, srv.WaitJoined("order", "o1", 1, waitFor))
	assert.Equal(t, []events.JoinPayload{{RoomType: "order", RoomID: "o1"}}, srv.Joins())
	assert.Equal(t, []string{"tok-1"}, srv.Tokens())

	rec := &recorder{}
	h.OnFrame(rec.add)

	pushtest.Broadcast(srv, "order", "o1", events.CancelOrderItem, itemCancelled("i1"))
	pushtest.Broadcast(srv, "order", "o1", events.CancelOrderItem, itemCancelled("i2"))
	pushtest.Broadcast(srv, "order", "o2", events.CancelOrderItem, itemCancelled("other"))

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, waitFor, 5*time.Millisecond)
	var first events.CancelOrderItemPayload
	require.NoError(t, json.Unmarshal(rec.all()[0].Data, &first))
	assert.Equal(t, "i1", first.ID, "frames arrive in order")
}

func TestManager_ConnectInvalidRoom(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder})
	assert.ErrorIs(t, err, ErrInvalidRoom)
	assert.Nil(t, h)
	assert.Zero(t, srv.Handshakes())
}

func TestManager_ReconnectRejoinsOnce(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{})

	h, err := m.Connect(context.Background(), Room{Type: RoomAdminOrder, ID: "m1"})
	require.NoError(t, err)
	require.True(t, srv.WaitJoined("admin_order", "m1", 1, waitFor))

	rec := &recorder{}
	h.OnFrame(rec.add)

	srv.DropAll()
	require.Eventually(t, func() bool { return len(srv.Joins()) == 2 && h.IsConnected() }, waitFor, 5*time.Millisecond)
	require.True(t, srv.WaitJoined("admin_order", "m1", 1, waitFor))

	pushtest.Broadcast(srv, "admin_order", "m1", events.OrderPaid, events.OrderPaidPayload{ID: "o1"})
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, 5*time.Millisecond)

	joins := srv.Joins()
	assert.Len(t, joins, 2, "join is re-sent exactly once per reconnection")
	assert.Equal(t, joins[0], joins[1])
	assert.Empty(t, srv.Received(), "nothing but join was written")
}

func TestManager_ReconnectGivesUp(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{MaxReconnectAttempts: 2, ReconnectDelay: 10 * time.Millisecond})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)

	srv.Reject(503)
	srv.DropAll()

	require.Eventually(t, func() bool { return srv.Handshakes() == 3 }, waitFor, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, srv.Handshakes(), "initial dial plus two attempts")
	assert.False(t, h.IsConnected())

	// an explicit Connect starts over
	srv.Reject(0)
	require.NoError(t, h.Connect(context.Background()))
	assert.True(t, h.IsConnected())
}

func TestManager_DisconnectCancelsReconnect(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{ReconnectDelay: 50 * time.Millisecond})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)

	srv.DropAll()
	require.Eventually(t, func() bool { return !h.IsConnected() }, waitFor, time.Millisecond)
	m.Disconnect(h)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, srv.Handshakes())
	assert.False(t, h.IsConnected())
	assert.ErrorIs(t, h.Emit(events.NameOrderUpdate, map[string]string{}), ErrNotConnected)
}

func TestManager_SwitchRoom(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)
	require.True(t, srv.WaitJoined("order", "o1", 1, waitFor))

	rec := &recorder{}
	h.OnFrame(rec.add)

	require.NoError(t, m.SwitchRoom(context.Background(), h, Room{Type: RoomOrder, ID: "o2"}))
	require.True(t, srv.WaitJoined("order", "o2", 1, waitFor))

	pushtest.Broadcast(srv, "order", "o1", events.CancelOrderItem, itemCancelled("stale"))
	pushtest.Broadcast(srv, "order", "o2", events.OrderUpdate, events.OrderUpdatePayload{ID: "o2", Status: "ready"})

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	frames := rec.all()
	require.Len(t, frames, 1)
	assert.Equal(t, events.NameOrderUpdate, frames[0].Event)
	assert.Equal(t, Room{Type: RoomOrder, ID: "o2"}, h.Room())
}

func TestHandle_Emit(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)

	require.NoError(t, h.Emit(events.NameOrderUpdate, events.OrderUpdatePayload{ID: "o1", Status: "ready"}))
	require.Eventually(t, func() bool { return len(srv.Received()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, events.NameOrderUpdate, srv.Received()[0].Event)
}

func TestManager_ExpiredToken(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	m := newTestManager(t, srv, Options{Token: auth.Token(expired), ReconnectDelay: 5 * time.Millisecond})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	require.NotNil(t, h)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, srv.Handshakes(), "expired tokens never dial")
	assert.False(t, h.IsConnected())
}

func TestManager_MalformedFrameSkipped(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)
	require.True(t, srv.WaitJoined("order", "o1", 1, waitFor))

	rec := &recorder{}
	h.OnFrame(rec.add)

	srv.BroadcastFrame("order", "o1", events.Frame{})
	pushtest.Broadcast(srv, "order", "o1", events.OrderPaid, events.OrderPaidPayload{ID: "o1"})

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, 5*time.Millisecond)
	assert.True(t, h.IsConnected())
}

func TestManager_Close(t *testing.T) {
	srv := pushtest.NewServer()
	defer srv.Close()
	m := newTestManager(t, srv, Options{})

	h, err := m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o1"})
	require.NoError(t, err)

	m.Close()
	assert.False(t, h.IsConnected())

	_, err = m.Connect(context.Background(), Room{Type: RoomOrder, ID: "o2"})
	assert.ErrorIs(t, err, ErrClosed)
}
