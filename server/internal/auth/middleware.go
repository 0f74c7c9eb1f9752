package auth

import (
	"errors"
	"net/http"
)

// Middleware enforces v on HTTP requests. The API key is read from the
// verifier's header, the JWT from "Authorization: Bearer <token>".
// Rejected requests get 401 with a JSON error body.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		subject, err := v.Check(r.Header.Get(v.header), r.Header.Get("Authorization"))
		if err != nil {
			msg := "invalid credentials"
			if errors.Is(err, ErrMissingCredentials) {
				msg = "missing credentials"
			}
			if v.mode == ModeJWT {
				w.Header().Set("WWW-Authenticate", `Bearer realm="roomrelay"`)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"` + msg + `"}`)) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
	})
}
