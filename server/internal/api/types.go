package api

import (
	"github.com/obsidianstack/roomrelay/server/internal/alerts"
	"github.com/obsidianstack/roomrelay/server/internal/rooms"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string  `json:"state"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RoomCount     int     `json:"room_count"`
	SessionCount  int     `json:"session_count"`
	Connections   int     `json:"connections"`
}

// RoomsResponse is the payload for GET /api/v1/rooms.
type RoomsResponse struct {
	Rooms      []rooms.Info `json:"rooms"`
	TTLSeconds float64      `json:"ttl_seconds"`
}

// StatsResponse is the payload for GET /api/v1/stats.
type StatsResponse struct {
	// Series maps each relay metric name (without the "roomrelay_" prefix)
	// to its value summed across labels.
	Series      map[string]float64 `json:"series"`
	Hints       []DiagnosticHint   `json:"hints"`
	GeneratedAt string             `json:"generated_at"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Alerts []*alerts.Alert `json:"alerts"`
	Count  int             `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}
