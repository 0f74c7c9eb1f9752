package rooms

import (
	"log/slog"
	"time"

	"github.com/obsidianstack/roomrelay/server/internal/broadcast"
	"github.com/obsidianstack/roomrelay/server/internal/ttlstore"
)

// Default policy values.
const (
	DefaultTTL          = 15 * time.Minute
	DefaultBuffer       = broadcast.DefaultCapacity
	DefaultReapInterval = 30 * time.Second
)

// Options configures a Registry. Zero fields fall back to the defaults.
type Options struct {
	TTL          time.Duration
	Buffer       int
	ReapInterval time.Duration
	// SlidingTTL refreshes a room's expiry on every join and message instead
	// of only at creation.
	SlidingTTL bool
}

// Info describes one live room.
type Info struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// Registry maps room names to their broadcast handles.
type Registry struct {
	store *ttlstore.Store[*broadcast.Room]
	opts  Options
}

// New creates a Registry. Call Store().Run to start expiring rooms.
func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	return &Registry{
		store: ttlstore.New[*broadcast.Room]("rooms", opts.ReapInterval),
		opts:  opts,
	}
}

// Store exposes the underlying TTL store so the caller can run its reaper.
func (r *Registry) Store() *ttlstore.Store[*broadcast.Room] { return r.store }

// Resolve returns the live room called name, creating it if necessary.
// Concurrent callers for the same name always get the same *broadcast.Room.
func (r *Registry) Resolve(name string) (room *broadcast.Room, created bool) {
	room, created = r.store.GetOrCreate(name, r.opts.TTL, func() *broadcast.Room {
		return broadcast.NewRoom(name, r.opts.Buffer)
	})
	if created {
		slog.Info("rooms: created", "room", name, "ttl", r.opts.TTL)
	} else {
		r.Touch(name)
	}
	return room, created
}

// Exists reports whether name is a live room.
func (r *Registry) Exists(name string) bool {
	return r.store.Exists(name)
}

// Touch refreshes the room's TTL when sliding expiry is enabled.
func (r *Registry) Touch(name string) {
	if r.opts.SlidingTTL {
		r.store.Touch(name, r.opts.TTL)
	}
}

// Lookup returns the live room's summary without creating it.
func (r *Registry) Lookup(name string) (Info, bool) {
	room, ok := r.store.Get(name)
	if !ok {
		return Info{}, false
	}
	return Info{Name: name, Subscribers: room.Subscribers()}, true
}

// List returns the live rooms sorted by name.
func (r *Registry) List() []Info {
	names := r.store.Keys()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		room, ok := r.store.Get(name)
		if !ok {
			continue
		}
		out = append(out, Info{Name: name, Subscribers: room.Subscribers()})
	}
	return out
}

// Len returns the number of rooms held, including expired rooms not yet reaped.
func (r *Registry) Len() int { return r.store.Len() }

// TTL returns the room expiry window.
func (r *Registry) TTL() time.Duration { return r.opts.TTL }
