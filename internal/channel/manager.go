package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mess-ordersync/internal/auth"
	"mess-ordersync/internal/logger"
)

const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultReconnectDelay       = 2 * time.Second
	DefaultMaxReconnectAttempts = 5
)

type Options struct {
	URL   string
	Token auth.Token

	ConnectTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	Logger *zap.Logger
}

// Manager owns the push connections of one client process. Each handle
// is one connection joined to one room.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	handles map[*Handle]struct{}
	closed  bool
}

func NewManager(opts Options) (*Manager, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	} else if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	log := opts.Logger
	if log == nil {
		log = logger.Layer("channel")
	}

	return &Manager{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
		},
		log:     log,
		now:     time.Now,
		handles: make(map[*Handle]struct{}),
	}, nil
}

// Connect opens a connection joined to room. The handle is returned even
// when the first attempt fails: it keeps retrying in the background
// unless the failure was an expired token.
func (m *Manager) Connect(ctx context.Context, room Room) (*Handle, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	h := newHandle(m, room)
	m.handles[h] = struct{}{}
	m.mu.Unlock()

	return h, h.Connect(ctx)
}

// Disconnect closes h and cancels any pending reconnection.
func (m *Manager) Disconnect(h *Handle) {
	h.Disconnect()
}

// SwitchRoom moves h to room. Events of the previous room are never
// delivered once SwitchRoom returns.
func (m *Manager) SwitchRoom(ctx context.Context, h *Handle, room Room) error {
	return h.SwitchRoom(ctx, room)
}

func (m *Manager) forget(h *Handle) {
	m.mu.Lock()
	delete(m.handles, h)
	m.mu.Unlock()
}

// Close disconnects every handle.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	handles := make([]*Handle, 0, len(m.handles))
	for h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Disconnect()
	}
}

func (m *Manager) header() http.Header {
	h := http.Header{}
	m.opts.Token.Apply(h)
	return h
}

func (m *Manager) dial(ctx context.Context, room Room) (*websocket.Conn, error) {
	if err := m.opts.Token.Check(m.now()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := m.dialer.DialContext(ctx, m.opts.URL, m.header())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", room, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", room, err)
	}
	return conn, nil
}
