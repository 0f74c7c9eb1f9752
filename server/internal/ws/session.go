package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/roomrelay/server/internal/broadcast"
	"github.com/obsidianstack/roomrelay/server/internal/metrics"
)

// State is the lifecycle stage of a connection session.
type State int32

const (
	StateResolving State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// session owns one upgraded connection. It runs two workers: inbound reads
// frames from the client and publishes them to the room, outbound forwards
// room messages to the client. When either worker stops the other is
// cancelled.
type session struct {
	conn    *websocket.Conn
	remote  string
	room    string
	rooms   RoomResolver
	metrics *metrics.Metrics
	cancel  context.CancelFunc

	mu    sync.Mutex
	state State
}

func newSession(conn *websocket.Conn, remote, room string, rooms RoomResolver, m *metrics.Metrics) *session {
	return &session{
		conn:    conn,
		remote:  remote,
		room:    room,
		rooms:   rooms,
		metrics: m,
		cancel:  func() {},
		state:   StateResolving,
	}
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// abort closes a connection that never became active.
func (s *session) abort() {
	s.setState(StateClosing)
	deadline := time.Now().Add(writeTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
	s.conn.Close()
	s.setState(StateClosed)
}

// run attaches the session to room and blocks until both workers exit.
func (s *session) run(parent context.Context, room *broadcast.Room) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sub := room.Subscribe()
	s.setState(StateActive)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.outbound(ctx, sub)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.inbound(room)
	}()

	<-ctx.Done()
	s.setState(StateClosing)
	sub.Close()

	code, text := websocket.CloseNormalClosure, ""
	if parent.Err() != nil {
		code, text = websocket.CloseGoingAway, "server shutting down"
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeTimeout))
	// Closing the connection unblocks the inbound worker's ReadMessage.
	s.conn.Close()

	wg.Wait()
	s.setState(StateClosed)
}

// inbound publishes every text frame the client sends to room, verbatim.
// Content is not inspected here; receivers validate it.
func (s *session) inbound(room *broadcast.Room) {
	s.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				slog.Warn("ws: read failed", "remote", s.remote, "room", s.room, "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		n := room.Publish(string(data))
		s.metrics.MessagePublished()
		s.rooms.Touch(s.room)
		slog.Debug("ws: published", "remote", s.remote, "room", s.room, "receivers", n)
	}
}

// outbound writes room messages to the client. Messages that fail to decode
// or validate are dropped and the loop continues.
func (s *session) outbound(ctx context.Context, sub *broadcast.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-sub.C():
			if !ok {
				if errors.Is(sub.Err(), broadcast.ErrLagged) {
					s.metrics.MessageDropped(metrics.ReasonLagged)
					slog.Warn("ws: subscriber lagged, closing", "remote", s.remote, "room", s.room)
				}
				return
			}
			// Queued messages are discarded once the session starts closing.
			if ctx.Err() != nil {
				return
			}
			if _, err := Decode(msg); err != nil {
				reason := metrics.ReasonInvalid
				if errors.Is(err, ErrMalformed) {
					reason = metrics.ReasonMalformed
				}
				s.metrics.MessageDropped(reason)
				slog.Warn("ws: dropping message", "remote", s.remote, "room", s.room, "err", err)
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				slog.Warn("ws: write failed", "remote", s.remote, "room", s.room, "err", err)
				return
			}
			s.metrics.MessageDelivered()

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
