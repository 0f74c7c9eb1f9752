package ttlstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultReapInterval is used when New is given a non-positive interval.
const DefaultReapInterval = time.Second

// entry is a value together with the instant it stops being visible.
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Store is a thread-safe in-memory map from string keys to values that expire
// after a per-entry TTL. Get hides expired entries immediately; the background
// reaper (Run) removes them from memory on a fixed interval.
//
// The lock is only ever held around map operations and the callbacks passed to
// GetOrCreate and SetUnless, which must not block.
type Store[T any] struct {
	name     string
	interval time.Duration

	mu   sync.Mutex
	data map[string]entry[T]
	now  func() time.Time // injectable for deterministic tests
}

// New creates an empty Store whose reaper sweeps every reapInterval once Run
// is started. name only appears in log lines.
func New[T any](name string, reapInterval time.Duration) *Store[T] {
	if reapInterval <= 0 {
		reapInterval = DefaultReapInterval
	}
	return &Store[T]{
		name:     name,
		interval: reapInterval,
		data:     make(map[string]entry[T]),
		now:      time.Now,
	}
}

// Set inserts or replaces the value for key. It expires ttl from now.
func (s *Store[T]) Set(key string, value T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry[T]{value: value, expiresAt: s.now().Add(ttl)}
}

// Get returns the value for key if it exists and has not expired.
// Expired entries are left for the reaper.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || !s.live(e) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Exists reports whether key holds a live entry.
func (s *Store[T]) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// GetOrCreate returns the live value for key. If there is none, create is
// called and its result stored with the given ttl; created reports which
// case happened. Lookup and insert happen in one critical section, so
// concurrent callers for the same key always observe the same value.
func (s *Store[T]) GetOrCreate(key string, ttl time.Duration, create func() T) (value T, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && s.live(e) {
		return e.value, false
	}
	value = create()
	s.data[key] = entry[T]{value: value, expiresAt: s.now().Add(ttl)}
	return value, true
}

// SetUnless stores value under key unless reject returns true for some live
// entry. It scans every live entry, so the cost is O(live entries).
func (s *Store[T]) SetUnless(key string, value T, ttl time.Duration, reject func(key string, v T) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.data {
		if s.live(e) && reject(k, e.value) {
			return false
		}
	}
	s.data[key] = entry[T]{value: value, expiresAt: s.now().Add(ttl)}
	return true
}

// Touch pushes the expiry of a live entry to ttl from now.
// It returns false if key is absent or already expired.
func (s *Store[T]) Touch(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || !s.live(e) {
		return false
	}
	e.expiresAt = s.now().Add(ttl)
	s.data[key] = e
	return true
}

// Keys returns the live keys in sorted order.
func (s *Store[T]) Keys() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if s.live(e) {
			out = append(out, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Len returns the number of entries held, including expired ones the reaper
// has not removed yet.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Evict removes every entry whose expiry is at or before now and returns how
// many were removed.
func (s *Store[T]) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(now)
}

func (s *Store[T]) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(s.now())
}

func (s *Store[T]) evictLocked(now time.Time) int {
	removed := 0
	for k, e := range s.data {
		if !e.expiresAt.After(now) {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

// Run starts the reaper. It blocks until ctx is cancelled.
func (s *Store[T]) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sweep(); n > 0 {
				slog.Debug("store: evicted expired entries", "store", s.name, "count", n)
			}
		}
	}
}

// SetClock replaces the time source. Intended for tests in other packages.
func (s *Store[T]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live must be called with s.mu held.
func (s *Store[T]) live(e entry[T]) bool {
	return e.expiresAt.After(s.now())
}
