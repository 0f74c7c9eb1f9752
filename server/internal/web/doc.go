// Package web is the relay's public HTTP surface: the embedded pages, the
// registration and room endpoints, and the mount points for the WebSocket
// hub, the admin API, /healthz and /metrics.
//
// Routing uses gorilla/mux, so a known path with the wrong method answers
// 405. Everything is wrapped in rs/cors configured from
// server.allowed_origins.
//
// POST /register sets the session cookie:
//
//	token=<token>; Path=/; Max-Age=<sessions.ttl>; HttpOnly; Secure; SameSite=Strict
//
// GET / then serves the room picker instead of the registration page for as
// long as the token is live.
package web
