// Package sessions issues short-lived login sessions.
//
// Register stores (username, password) under a fresh random alphanumeric
// token and fails with ErrConflict while another live session holds the same
// username. Authenticate is a plain lookup by token. Sessions expire after
// their TTL (5 minutes by default), which also frees the username.
package sessions
