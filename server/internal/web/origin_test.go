package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list allows all", nil, "https://evil.example", true},
		{"wildcard allows all", []string{"*"}, "https://evil.example", true},
		{"exact match", []string{"https://chat.example.com"}, "https://chat.example.com", true},
		{"case insensitive", []string{"https://Chat.Example.com"}, "HTTPS://chat.example.COM", true},
		{"path ignored", []string{"https://chat.example.com/app"}, "https://chat.example.com", true},
		{"other origin rejected", []string{"https://chat.example.com"}, "https://evil.example", false},
		{"port matters", []string{"http://localhost:8080"}, "http://localhost:3000", false},
		{"no origin header", []string{"https://chat.example.com"}, "", true},
		{"garbage origin", []string{"https://chat.example.com"}, "not a url", false},
		{"invalid config entry ignored", []string{"nonsense", "https://ok.example"}, "https://ok.example", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			if got := OriginChecker(tc.allowed)(r); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
