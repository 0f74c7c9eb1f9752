package broadcast

import (
	"errors"
	"sync"
)

// DefaultCapacity is the per-subscriber lag buffer used when NewRoom is given
// a non-positive capacity.
const DefaultCapacity = 10

var (
	// ErrLagged ends a subscription whose buffer overflowed.
	ErrLagged = errors.New("broadcast: subscriber lagged behind")
	// ErrClosed ends a subscription that was closed by its owner.
	ErrClosed = errors.New("broadcast: subscription closed")
)

// Room is a fan-out point for text messages. Every Subscription created from
// it receives each message published after it was created, in publish order.
//
// Publishers never block: a subscriber whose buffer is full is dropped and
// its channel closed with ErrLagged.
type Room struct {
	name     string
	capacity int

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewRoom creates a Room whose subscribers buffer up to capacity messages.
func NewRoom(name string, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Room{
		name:     name,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Capacity returns the per-subscriber buffer size.
func (r *Room) Capacity() int { return r.capacity }

// Subscribe registers a new subscriber.
func (r *Room) Subscribe() *Subscription {
	s := &Subscription{
		room: r,
		ch:   make(chan string, r.capacity),
	}
	r.mu.Lock()
	r.subs[s] = struct{}{}
	r.mu.Unlock()
	return s
}

// Publish enqueues msg for every current subscriber and returns how many
// accepted it. Subscribers with a full buffer are removed. Publishing to a
// room with no subscribers is a no-op.
func (r *Room) Publish(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for s := range r.subs {
		select {
		case s.ch <- msg:
			delivered++
		default:
			delete(r.subs, s)
			s.end(ErrLagged)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions.
func (r *Room) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Room) remove(s *Subscription) {
	r.mu.Lock()
	delete(r.subs, s)
	r.mu.Unlock()
}

// Subscription is one subscriber's view of a Room.
type Subscription struct {
	room *Room
	ch   chan string

	once sync.Once
	mu   sync.Mutex
	err  error
}

// C returns the channel messages are delivered on. It is closed when the
// subscription ends; Err then reports why.
func (s *Subscription) C() <-chan string { return s.ch }

// Err returns nil while the subscription is live, otherwise ErrLagged or
// ErrClosed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the subscription from its room and closes C. Messages
// already buffered stay readable until C drains. Close is idempotent.
func (s *Subscription) Close() {
	s.room.remove(s)
	s.end(ErrClosed)
}

func (s *Subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}
