// Package rooms resolves room names to broadcast handles.
//
// Resolve is an atomic get-or-create on top of a ttlstore.Store, so two
// clients joining a brand new room at the same moment always end up on the
// same handle. Rooms expire TTL after creation; with Options.SlidingTTL the
// window restarts on every join and message.
package rooms
