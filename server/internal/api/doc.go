// Package api implements the relay's admin REST API.
//
// New(rooms, sessions, metrics) returns an http.Handler that serves:
//
//	GET /api/v1/health        uptime, room and session counts, live connections
//	GET /api/v1/rooms         all live rooms with subscriber counts
//	GET /api/v1/rooms/{name}  single room; 404 if unknown or expired
//	GET /api/v1/stats         relay counters plus diagnostic hints
//	GET /api/v1/alerts        firing and recently resolved alerts
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Authentication is applied by the caller (see package
// auth); this package only reads state.
package api
