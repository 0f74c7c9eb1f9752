// Package ttlstore provides a generic, thread-safe keyed store whose entries
// expire after a per-entry TTL. The relay keeps two of them: one for room
// broadcast handles and one for login sessions.
//
// Expiry is both lazy and eager. Get never returns an entry whose expiry is
// at or before the current time, and Run sweeps the map on a fixed interval
// so expired entries do not accumulate. Run stops when its context is
// cancelled.
//
// GetOrCreate and SetUnless are the atomic primitives the registries build
// on: they check and insert under a single lock acquisition.
package ttlstore
