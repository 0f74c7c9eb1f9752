package sessions

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/obsidianstack/roomrelay/server/internal/ttlstore"
)

// Default policy values.
const (
	DefaultTTL          = 5 * time.Minute
	DefaultTokenLength  = 32
	DefaultReapInterval = 30 * time.Second

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxAttempts   = 3
)

var (
	// ErrConflict is returned when a live session already uses the username.
	ErrConflict = errors.New("sessions: username already taken")
	// ErrInvalidCredentials is returned for a blank username or password.
	ErrInvalidCredentials = errors.New("sessions: username and password are required")
)

// User is the value stored for each session token.
type User struct {
	Username string
	Password string
}

// Options configures a Registry. Zero fields fall back to the defaults.
type Options struct {
	TTL          time.Duration
	TokenLength  int
	ReapInterval time.Duration
}

// Registry issues opaque session tokens and resolves them back to users.
type Registry struct {
	store *ttlstore.Store[User]
	opts  Options
}

// New creates a Registry. Call Store().Run to start expiring sessions.
func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TokenLength <= 0 {
		opts.TokenLength = DefaultTokenLength
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	return &Registry{
		store: ttlstore.New[User]("sessions", opts.ReapInterval),
		opts:  opts,
	}
}

// Store exposes the underlying TTL store so the caller can run its reaper.
func (r *Registry) Store() *ttlstore.Store[User] { return r.store }

// Register creates a session for username and returns its token. The
// username is stored and compared with surrounding space trimmed.
//
// Sessions are keyed by token, so the uniqueness check scans every live
// session: O(live sessions) per registration.
func (r *Registry) Register(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return "", ErrInvalidCredentials
	}
	user := User{Username: username, Password: password}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := newToken(r.opts.TokenLength)
		if err != nil {
			return "", fmt.Errorf("sessions: generate token: %w", err)
		}

		var taken bool
		ok := r.store.SetUnless(token, user, r.opts.TTL, func(key string, u User) bool {
			if u.Username == username {
				taken = true
				return true
			}
			return key == token
		})
		if ok {
			slog.Info("sessions: registered", "username", username, "ttl", r.opts.TTL)
			return token, nil
		}
		if taken {
			return "", ErrConflict
		}
	}
	return "", fmt.Errorf("sessions: could not allocate a unique token after %d attempts", maxAttempts)
}

// Authenticate returns the user holding token, if the session is live.
func (r *Registry) Authenticate(token string) (User, bool) {
	if token == "" {
		return User{}, false
	}
	return r.store.Get(token)
}

// Len returns the number of sessions held, including expired ones not yet reaped.
func (r *Registry) Len() int { return r.store.Len() }

// TTL returns the session lifetime.
func (r *Registry) TTL() time.Duration { return r.opts.TTL }

// newToken returns n characters drawn uniformly from tokenAlphabet.
func newToken(n int) (string, error) {
	size := big.NewInt(int64(len(tokenAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
