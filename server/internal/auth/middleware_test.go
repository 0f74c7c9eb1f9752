package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(v *Verifier, header, value string) *httptest.ResponseRecorder {
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Subject(r.Context()))) //nolint:errcheck
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_Disabled(t *testing.T) {
	rr := serve(NewVerifier(ModeNone, "", "", nil), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if rr.Body.String() != "anonymous" {
		t.Errorf("subject: got %q, want anonymous", rr.Body.String())
	}
}

func TestMiddleware_APIKey(t *testing.T) {
	v := NewVerifier(ModeAPIKey, "X-API-Key", "k", nil)

	if rr := serve(v, "X-API-Key", "k"); rr.Code != http.StatusOK {
		t.Errorf("correct key: got %d, want 200", rr.Code)
	}
	rr := serve(v, "X-API-Key", "nope")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d, want 401", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if rr := serve(v, "", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("missing key: got %d, want 401", rr.Code)
	}
}

func TestMiddleware_JWT(t *testing.T) {
	v := NewVerifier(ModeJWT, "", "", []byte("s"))
	tok, err := v.Sign("ops", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	rr := serve(v, "Authorization", "Bearer "+tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: got %d, want 200", rr.Code)
	}
	if rr.Body.String() != "ops" {
		t.Errorf("subject: got %q, want ops", rr.Body.String())
	}

	rr = serve(v, "Authorization", "Bearer junk")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token: got %d, want 401", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("WWW-Authenticate header missing")
	}
}
