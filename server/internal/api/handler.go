package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/obsidianstack/roomrelay/server/internal/alerts"
	"github.com/obsidianstack/roomrelay/server/internal/metrics"
	"github.com/obsidianstack/roomrelay/server/internal/rooms"
)

// Rooms is the read side of the room registry used by the admin API.
type Rooms interface {
	List() []rooms.Info
	Lookup(name string) (rooms.Info, bool)
	Len() int
	TTL() time.Duration
}

// Alerts is the read side of the alert engine.
type Alerts interface {
	Active() []*alerts.Alert
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	rooms    Rooms
	sessions func() int
	metrics  *metrics.Metrics
	alerts   Alerts
	started  time.Time
	now      func() time.Time
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes. sessions reports the
// number of held sessions.
func New(rs Rooms, sessions func() int, m *metrics.Metrics) *Handler {
	h := &Handler{
		rooms:    rs,
		sessions: sessions,
		metrics:  m,
		started:  time.Now(),
		now:      time.Now,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/rooms", h.listRooms)
	h.mux.HandleFunc("/api/v1/rooms/", h.getRoom) // subtree, extracts {name}
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)

	return h
}

// SetAlerts attaches the alert engine. Without one, /api/v1/alerts returns
// an empty list.
func (h *Handler) SetAlerts(a Alerts) *Handler {
	h.alerts = a
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: uptime and store sizes.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		State:         "ok",
		UptimeSeconds: h.now().Sub(h.started).Seconds(),
		RoomCount:     h.rooms.Len(),
		SessionCount:  h.sessions(),
	}
	if v, err := h.metrics.Values(); err == nil {
		resp.Connections = int(v["connections_active"])
	}
	jsonResp(w, http.StatusOK, resp)
}

// listRooms returns GET /api/v1/rooms: all live rooms.
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, RoomsResponse{
		Rooms:      h.rooms.List(),
		TTLSeconds: h.rooms.TTL().Seconds(),
	})
}

// getRoom returns GET /api/v1/rooms/{name}: a single live room.
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/rooms/")
	if name == "" {
		h.listRooms(w, r)
		return
	}

	info, ok := h.rooms.Lookup(name)
	if !ok {
		jsonErr(w, http.StatusNotFound, "room not found")
		return
	}
	jsonResp(w, http.StatusOK, info)
}

// stats returns GET /api/v1/stats: relay counters and diagnostic hints.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	series, err := h.metrics.Values()
	if err != nil {
		slog.Error("api: gather metrics", "err", err)
		jsonErr(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	dropped, err := h.metrics.ByLabel("messages_dropped_total", "reason")
	if err != nil {
		slog.Error("api: gather metrics", "err", err)
		jsonErr(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}

	jsonResp(w, http.StatusOK, StatsResponse{
		Series:      series,
		Hints:       computeDiagnostics(series, dropped),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	})
}

// listAlerts returns GET /api/v1/alerts: firing alerts and those resolved
// within the last hour.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	active := []*alerts.Alert{}
	if h.alerts != nil {
		active = h.alerts.Active()
	}
	jsonResp(w, http.StatusOK, AlertsResponse{Alerts: active, Count: len(active)})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
