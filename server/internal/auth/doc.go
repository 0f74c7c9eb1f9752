// Package auth guards the relay's admin surfaces: the /api/v1 HTTP API and
// the gRPC health probe.
//
// NewVerifier(mode, header, key, secret) builds a Verifier for one mode:
//   - apikey: the key must match the value of header (default "x-api-key").
//   - jwt:    an HS256 bearer token with a subject and an expiry, signed with
//     secret, in the Authorization header.
//   - none:   everything passes.
//
// A mode whose credential is not configured passes everything, which keeps
// local development free of setup. Verifier.Middleware wraps an http.Handler
// and Verifier.UnaryInterceptor returns the gRPC equivalent. Both put the
// authenticated subject on the request context; read it with Subject.
package auth
