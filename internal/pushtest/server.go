// Package pushtest runs an in-process push service for tests. It speaks
// the same frames as the production service: a client joins a room with
// join_room and then receives the events broadcast to that room.
package pushtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mess-ordersync/internal/auth"
	"mess-ordersync/internal/events"
)

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	room    events.JoinPayload
	joined  bool
}

func (p *peer) send(f events.Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(time.Second))
	return p.conn.WriteJSON(f)
}

type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	peers      map[*peer]struct{}
	joins      []events.JoinPayload
	tokens     []string
	received   []events.Frame
	handshakes int
	reject     int
	changed    chan struct{}
}

func NewServer() *Server {
	s := &Server{
		peers:   make(map[*peer]struct{}),
		changed: make(chan struct{}, 1),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

// Reject makes every upgrade fail with the given status; 0 accepts again.
func (s *Server) Reject(status int) {
	s.mu.Lock()
	s.reject = status
	s.mu.Unlock()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.handshakes++
	s.tokens = append(s.tokens, auth.ExtractAccessToken(r))
	reject := s.reject
	s.mu.Unlock()
	s.signal()

	if reject != 0 {
		http.Error(w, http.StatusText(reject), reject)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f events.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		s.mu.Lock()
		if f.Event == events.NameJoinRoom {
			var join events.JoinPayload
			if err := json.Unmarshal(f.Data, &join); err == nil {
				p.room, p.joined = join, true
				s.joins = append(s.joins, join)
			}
		} else {
			s.received = append(s.received, f)
		}
		s.mu.Unlock()
		s.signal()
	}
}

func (s *Server) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Broadcast sends kind/payload to every client joined to the room and
// returns how many received it.
func Broadcast[P events.Payload](s *Server, roomType, roomID string, kind events.Kind[P], payload P) int {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return s.BroadcastFrame(roomType, roomID, events.Frame{Event: kind.Name(), Data: data})
}

// BroadcastFrame sends a raw frame, which may be malformed on purpose.
func (s *Server) BroadcastFrame(roomType, roomID string, f events.Frame) int {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		if p.joined && p.room.RoomType == roomType && p.room.RoomID == roomID {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, p := range targets {
		if p.send(f) == nil {
			sent++
		}
	}
	return sent
}

// DropAll closes every client connection from the server side.
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}
}

func (s *Server) Joins() []events.JoinPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.JoinPayload(nil), s.joins...)
}

func (s *Server) Received() []events.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Frame(nil), s.received...)
}

func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func (s *Server) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakes
}

// Joined reports how many clients are currently in the room.
func (s *Server) Joined(roomType, roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range s.peers {
		if p.joined && p.room.RoomType == roomType && p.room.RoomID == roomID {
			n++
		}
	}
	return n
}

// WaitJoined blocks until n clients are in the room or timeout passes.
func (s *Server) WaitJoined(roomType, roomID string, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if s.Joined(roomType, roomID) >= n {
			return true
		}
		select {
		case <-s.changed:
		case <-time.After(5 * time.Millisecond):
		case <-deadline.C:
			return false
		}
	}
}
