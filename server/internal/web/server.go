package web

import (
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/obsidianstack/roomrelay/server/internal/broadcast"
	"github.com/obsidianstack/roomrelay/server/internal/metrics"
	"github.com/obsidianstack/roomrelay/server/internal/sessions"
)

// CookieName is the cookie carrying the session token.
const CookieName = "token"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 4096

//go:embed pages/*.html
var pages embed.FS

// Rooms is the room registry as seen by the page handlers.
type Rooms interface {
	Resolve(name string) (room *broadcast.Room, created bool)
	Exists(name string) bool
}

// Sessions is the session registry as seen by the page handlers.
type Sessions interface {
	Register(username, password string) (string, error)
	Authenticate(token string) (sessions.User, bool)
	TTL() time.Duration
}

// Config wires a Server.
type Config struct {
	Rooms    Rooms
	Sessions Sessions
	Metrics  *metrics.Metrics

	// Hub serves GET /ws.
	Hub http.Handler
	// Admin serves /api/v1/*. It is mounted as given; wrap it with auth first.
	Admin http.Handler

	AllowedOrigins []string
	// AuthHeader is the API key header admitted by CORS preflight.
	AuthHeader   string
	SecureCookie bool
}

// Server is the relay's public HTTP surface.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New builds the router:
//
//	GET  /          registration page, or the room picker with a live session
//	GET  /chat      chat page for ?room=, redirect to / if the room is gone
//	POST /room      create or join a room
//	POST /register  start a session and set the token cookie
//	GET  /ws        WebSocket relay
//	     /api/v1/*  admin API
//	GET  /healthz   liveness
//	GET  /metrics   Prometheus exposition
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	r := mux.NewRouter()
	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.chat).Methods(http.MethodGet)
	r.HandleFunc("/room", s.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/register", s.register).Methods(http.MethodPost)
	r.Handle("/ws", cfg.Hub).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	if cfg.Admin != nil {
		r.PathPrefix("/api/v1/").Handler(cfg.Admin)
	}

	headers := []string{"Content-Type", "Authorization"}
	if cfg.AuthHeader != "" {
		headers = append(headers, cfg.AuthHeader)
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   headers,
		AllowCredentials: true,
	})
	s.handler = c.Handler(r)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// --- pages ------------------------------------------------------------------

// index serves the room picker to a client with a live session and the
// registration page to everyone else.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	page := "pages/index.html"
	if c, err := r.Cookie(CookieName); err == nil {
		if _, ok := s.cfg.Sessions.Authenticate(c.Value); ok {
			page = "pages/rooms.html"
		}
	}
	servePage(w, page)
}

// chat serves the chat page for an existing room.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" || !s.cfg.Rooms.Exists(room) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	servePage(w, "pages/chat.html")
}

func servePage(w http.ResponseWriter, name string) {
	body, err := pages.ReadFile(name)
	if err != nil {
		slog.Error("web: missing page", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- JSON endpoints ---------------------------------------------------------

type roomRequest struct {
	Room string `json:"room"`
}

type roomResponse struct {
	Room    string `json:"room"`
	Created bool   `json:"created"`
}

// createRoom handles POST /room. It answers 201 whether the room was created
// or already existed; Created tells them apart.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Room)
	if name == "" {
		jsonErr(w, http.StatusBadRequest, "room is required")
		return
	}

	_, created := s.cfg.Rooms.Resolve(name)
	jsonResp(w, http.StatusCreated, roomResponse{Room: name, Created: created})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// register handles POST /register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.cfg.Metrics.Registration(metrics.ResultInvalid)
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.cfg.Sessions.Register(req.Username, req.Password)
	switch {
	case errors.Is(err, sessions.ErrConflict):
		s.cfg.Metrics.Registration(metrics.ResultConflict)
		jsonErr(w, http.StatusConflict, "username already taken")
		return
	case errors.Is(err, sessions.ErrInvalidCredentials):
		s.cfg.Metrics.Registration(metrics.ResultInvalid)
		jsonErr(w, http.StatusBadRequest, "username and password are required")
		return
	case err != nil:
		slog.Error("web: register", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.cfg.Metrics.Registration(metrics.ResultOK)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.Sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	jsonResp(w, http.StatusCreated, registerResponse{Token: token, RedirectURL: "/"})
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
