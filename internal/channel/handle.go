package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mess-ordersync/internal/auth"
	"mess-ordersync/internal/events"
)

const writeWait = 5 * time.Second

// Handle is one connection to the push service. Frames are delivered to
// listeners in arrival order on the connection's reader goroutine;
// listeners must not call Disconnect or SwitchRoom synchronously.
type Handle struct {
	m *Manager

	mu        sync.Mutex
	room      Room
	conn      *websocket.Conn
	connected bool
	closed    bool
	// epoch moves on every connect, loss, switch and disconnect. A reader
	// or reconnect timer only acts while its epoch is current.
	epoch    uint64
	attempts int
	timer    *time.Timer
	ctx      context.Context
	cancel   context.CancelFunc

	writeMu sync.Mutex

	// deliverMu is held while listeners run so that a switch or disconnect
	// can wait out a frame of the old room.
	deliverMu sync.Mutex
	listeners map[int]func(events.Frame)
	nextID    int

	states chan bool
}

func newHandle(m *Manager, room Room) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		m:         m,
		room:      room,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(events.Frame)),
		states:    make(chan bool, 1),
	}
}

func (h *Handle) Room() Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.room
}

func (h *Handle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// States yields the latest connection state after every change. Only the
// most recent value is kept for slow readers.
func (h *Handle) States() <-chan bool {
	return h.states
}

func (h *Handle) log() *zap.Logger {
	return h.m.log.With(zap.Stringer("room", h.Room()))
}

// OnFrame registers fn for every inbound frame and returns its remover.
func (h *Handle) OnFrame(fn func(events.Frame)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Connect (re)opens the connection for the current room. It is a no-op
// while connected and resets the reconnection budget.
func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.connected {
		h.mu.Unlock()
		return nil
	}
	h.reviveLocked()
	h.attempts = 0
	h.stopTimerLocked()
	h.mu.Unlock()

	err := h.open(ctx)
	h.afterDial(err)
	if errors.Is(err, ErrClosed) && h.IsConnected() {
		// a reconnect attempt won the race
		return nil
	}
	return err
}

// reviveLocked makes a disconnected handle usable again.
func (h *Handle) reviveLocked() {
	if !h.closed {
		return
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.closed = false
	h.m.mu.Lock()
	h.m.handles[h] = struct{}{}
	h.m.mu.Unlock()
}

// open dials, sends join_room and only then marks the handle ready.
func (h *Handle) open(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	epoch, room, handleCtx := h.epoch, h.room, h.ctx
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(handleCtx, cancel)
	defer stop()

	conn, err := h.m.dial(ctx, room)
	if err != nil {
		return err
	}

	// 1. join before anything else is written or read
	frame, err := events.JoinRoom.Encode(room.join())
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(h.m.opts.ConnectTimeout))
		err = conn.WriteJSON(frame)
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if err != nil {
		conn.Close()
		return err
	}

	// 2. publish unless a switch or disconnect happened meanwhile
	h.mu.Lock()
	if h.closed || h.epoch != epoch {
		h.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	h.epoch++
	epoch = h.epoch
	h.conn = conn
	h.connected = true
	h.attempts = 0
	h.mu.Unlock()

	h.log().Info("channel connected")
	h.publish(true)

	// 3. start delivering
	go h.readLoop(conn, epoch)
	return nil
}

func (h *Handle) afterDial(err error) {
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrTokenExpired):
		h.log().Warn("access token expired, not reconnecting")
	case errors.Is(err, ErrClosed):
	default:
		h.log().Warn("channel connect failed", zap.Error(err))
		h.scheduleReconnect()
	}
}

func (h *Handle) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.lost(conn, epoch, err)
			return
		}

		var f events.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			h.log().Warn("dropping malformed frame", zap.ByteString("frame", data))
			continue
		}
		h.deliver(epoch, f)
	}
}

func (h *Handle) deliver(epoch uint64, f events.Frame) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	if h.epoch != epoch {
		h.mu.Unlock()
		return
	}
	fns := make([]func(events.Frame), 0, len(h.listeners))
	for id := 0; id < h.nextID; id++ {
		if fn, ok := h.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(f)
	}
}

// lost handles an unexpected end of the connection.
func (h *Handle) lost(conn *websocket.Conn, epoch uint64, cause error) {
	h.mu.Lock()
	if h.epoch != epoch {
		h.mu.Unlock()
		return
	}
	h.epoch++
	h.conn = nil
	h.connected = false
	h.mu.Unlock()

	conn.Close()
	h.log().Warn("channel disconnected", zap.Error(cause))
	h.publish(false)
	h.scheduleReconnect()
}

func (h *Handle) scheduleReconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.connected {
		return
	}
	if h.attempts >= h.m.opts.MaxReconnectAttempts {
		h.m.log.Warn("giving up reconnecting",
			zap.Stringer("room", h.room),
			zap.Int("attempts", h.attempts),
		)
		return
	}

	h.attempts++
	epoch, attempt := h.epoch, h.attempts
	h.stopTimerLocked()
	h.timer = time.AfterFunc(h.m.opts.ReconnectDelay, func() {
		h.reconnect(epoch, attempt)
	})
}

func (h *Handle) reconnect(epoch uint64, attempt int) {
	h.mu.Lock()
	if h.closed || h.epoch != epoch || h.connected {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	ctx := h.ctx
	h.mu.Unlock()

	h.log().Info("reconnecting", zap.Int("attempt", attempt))
	h.afterDial(h.open(ctx))
}

func (h *Handle) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// Disconnect closes the connection and cancels pending reconnection.
func (h *Handle) Disconnect() {
	conn, was := h.detach(true)
	h.m.forget(h)
	h.closeConn(conn)
	if was {
		h.log().Info("channel disconnected by client")
		h.publish(false)
	}
}

// SwitchRoom disconnects and reconnects to room on the same handle, so
// listeners stay registered.
func (h *Handle) SwitchRoom(ctx context.Context, room Room) error {
	if err := room.Validate(); err != nil {
		return err
	}

	conn, was := h.detach(false)
	h.closeConn(conn)
	if was {
		h.publish(false)
	}

	h.mu.Lock()
	h.reviveLocked()
	h.room = room
	h.attempts = 0
	h.mu.Unlock()

	h.log().Info("switched room")
	err := h.open(ctx)
	h.afterDial(err)
	return err
}

// detach invalidates the current epoch and waits until no listener of
// the old connection is running.
func (h *Handle) detach(closing bool) (*websocket.Conn, bool) {
	h.mu.Lock()
	h.epoch++
	h.stopTimerLocked()
	if closing {
		h.closed = true
		h.cancel()
	}
	conn, was := h.conn, h.connected
	h.conn = nil
	h.connected = false
	h.mu.Unlock()

	h.deliverMu.Lock()
	h.deliverMu.Unlock()
	return conn, was
}

func (h *Handle) closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	h.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	h.writeMu.Unlock()
	conn.Close()
}

// Emit sends an event to the room. It fails with ErrNotConnected instead
// of queueing while the handle is down.
func (h *Handle) Emit(event events.Name, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	conn, connected := h.conn, h.connected
	h.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(events.Frame{Event: event, Data: data})
}

func (h *Handle) publish(connected bool) {
	select {
	case <-h.states:
	default:
	}
	select {
	case h.states <- connected:
	default:
	}
}
