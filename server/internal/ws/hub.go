package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/roomrelay/server/internal/broadcast"
	"github.com/obsidianstack/roomrelay/server/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize caps inbound frames when Options leaves it unset.
	DefaultMaxMessageSize = 4096
)

// RoomResolver finds or creates the room a connection joins.
type RoomResolver interface {
	Resolve(name string) (room *broadcast.Room, created bool)
	Touch(name string)
}

// Options configures a Hub.
type Options struct {
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64
	// CheckOrigin validates the Origin header. nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
}

// Hub upgrades HTTP requests to WebSocket connections, attaches each one to
// the room named by its ?room= query parameter, and tracks live sessions so
// they can be closed on shutdown.
type Hub struct {
	rooms    RoomResolver
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	maxSize  int64

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Hub that resolves rooms through rooms.
func New(rooms RoomResolver, m *metrics.Metrics, opts Options) *Hub {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		rooms:   rooms,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		maxSize:  opts.MaxMessageSize,
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades the connection and relays messages until either side
// stops. It blocks for the lifetime of the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("room"))
	if name == "" {
		http.Error(w, "room query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.metrics.UpgradeFailed()
		slog.Warn("ws: upgrade failed", "remote", r.RemoteAddr, "room", name, "err", err)
		return
	}
	conn.SetReadLimit(h.maxSize)

	s := newSession(conn, r.RemoteAddr, name, h.rooms, h.metrics)
	ctx, ok := h.register(s)
	if !ok {
		s.abort()
		return
	}
	defer h.unregister(s)

	room, created := h.rooms.Resolve(name)
	slog.Info("ws: connected", "remote", r.RemoteAddr, "room", name, "created", created)

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	s.run(ctx, room)
	slog.Info("ws: disconnected", "remote", r.RemoteAddr, "room", name, "state", s.State())
}

// Run blocks until ctx is cancelled, then closes every live session and
// waits for them to finish.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
	h.wg.Wait()
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(s *session) (context.Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	return ctx, true
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		h.wg.Done()
	}
	h.mu.Unlock()
	s.cancel()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.cancel()
	}
	if len(targets) > 0 {
		slog.Info("ws: closed sessions on shutdown", "count", len(targets))
	}
}
