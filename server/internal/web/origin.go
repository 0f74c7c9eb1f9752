package web

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker returns a WebSocket CheckOrigin function for the allowed
// origins. An empty list or a "*" entry accepts every origin. Requests
// without an Origin header come from non-browser clients and are accepted.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set, allowAll := normalizeOrigins(allowed)
	if allowAll || len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if header == "" {
			return true
		}
		origin, ok := normalizeOrigin(header)
		if !ok {
			return false
		}
		if _, exists := set[origin]; exists {
			return true
		}
		slog.Warn("web: rejected origin", "origin", header, "remote", r.RemoteAddr)
		return false
	}
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	set := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("web: ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		set[normalized] = struct{}{}
	}
	return set, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
