package sessions

import (
	"errors"
	"sync"
	"testing"
	"time"
	"unicode"
)

func TestRegister_IssuesToken(t *testing.T) {
	reg := New(Options{})
	tok, err := reg.Register("alice", "p1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(tok) != DefaultTokenLength {
		t.Errorf("token length: got %d, want %d", len(tok), DefaultTokenLength)
	}
	for _, r := range tok {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			t.Fatalf("token %q contains non-alphanumeric %q", tok, r)
		}
	}
}

func TestRegister_CustomTokenLength(t *testing.T) {
	reg := New(Options{TokenLength: 6})
	tok, err := reg.Register("alice", "p1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(tok) != 6 {
		t.Errorf("token length: got %d, want 6", len(tok))
	}
}

func TestRegister_DuplicateUsernameConflicts(t *testing.T) {
	reg := New(Options{})
	if _, err := reg.Register("alice", "p1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := reg.Register("alice", "p2")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("second Register: got %v, want ErrConflict", err)
	}
}

func TestRegister_UsernameFreedAfterExpiry(t *testing.T) {
	base := time.Now()
	reg := New(Options{TTL: 5 * time.Minute})
	reg.Store().SetClock(func() time.Time { return base })

	if _, err := reg.Register("alice", "p1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	reg.Store().SetClock(func() time.Time { return base.Add(5 * time.Minute) })
	if _, err := reg.Register("alice", "p2"); err != nil {
		t.Errorf("Register after expiry: %v", err)
	}
}

func TestRegister_BlankFields(t *testing.T) {
	reg := New(Options{})
	for _, tc := range []struct{ user, pass string }{
		{"", "p"},
		{"   ", "p"},
		{"alice", ""},
		{"alice", "   "},
	} {
		if _, err := reg.Register(tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Register(%q, %q): got %v, want ErrInvalidCredentials", tc.user, tc.pass, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	base := time.Now()
	reg := New(Options{TTL: 5 * time.Minute})
	reg.Store().SetClock(func() time.Time { return base })

	tok, err := reg.Register("alice", "p1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	u, ok := reg.Authenticate(tok)
	if !ok {
		t.Fatal("Authenticate: expected user")
	}
	if u.Username != "alice" {
		t.Errorf("Username: got %q, want alice", u.Username)
	}

	reg.Store().SetClock(func() time.Time { return base.Add(5 * time.Minute) })
	if _, ok := reg.Authenticate(tok); ok {
		t.Error("Authenticate after expiry: expected miss")
	}
}

func TestAuthenticate_UnknownToken(t *testing.T) {
	reg := New(Options{})
	if _, ok := reg.Authenticate("nope"); ok {
		t.Error("unknown token authenticated")
	}
	if _, ok := reg.Authenticate(""); ok {
		t.Error("empty token authenticated")
	}
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	reg := New(Options{})

	const n = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Register("alice", "pw"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful registrations: got %d, want 1", successes)
	}
}

func TestRegister_TrimsUsername(t *testing.T) {
	reg := New(Options{})
	tok, err := reg.Register(" alice ", "p1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u, _ := reg.Authenticate(tok); u.Username != "alice" {
		t.Errorf("Username: got %q, want alice", u.Username)
	}
	if _, err := reg.Register("alice", "p2"); !errors.Is(err, ErrConflict) {
		t.Errorf("Register(alice) after \" alice \": got %v, want ErrConflict", err)
	}
}
