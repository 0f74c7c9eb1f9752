package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth modes accepted by NewVerifier.
const (
	ModeAPIKey = "apikey"
	ModeJWT    = "jwt"
	ModeNone   = "none"
)

var (
	// ErrMissingCredentials means the request carried no key or token.
	ErrMissingCredentials = errors.New("auth: missing credentials")
	// ErrInvalidCredentials means the key or token was rejected.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// apiKeySubject is the subject attached to requests authenticated by API key.
const apiKeySubject = "apikey"

type ctxKey int

const subjectKey ctxKey = 1

// WithSubject returns a copy of ctx carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject returns the authenticated subject, or "anonymous" when auth is off.
func Subject(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

// Verifier checks admin credentials for one auth mode.
type Verifier struct {
	mode   string
	header string
	key    []byte
	secret []byte
}

// NewVerifier builds a Verifier. header names the API key header or metadata
// key; key is the expected API key and secret the JWT HMAC secret.
//
// A verifier whose mode is not apikey or jwt, or whose credential for that
// mode is empty, lets every request through.
func NewVerifier(mode, header, key string, secret []byte) *Verifier {
	return &Verifier{
		mode:   mode,
		header: strings.ToLower(header),
		key:    []byte(key),
		secret: secret,
	}
}

// Mode returns the configured mode.
func (v *Verifier) Mode() string { return v.mode }

// Enabled reports whether requests are actually checked.
func (v *Verifier) Enabled() bool {
	switch v.mode {
	case ModeAPIKey:
		return len(v.key) > 0
	case ModeJWT:
		return len(v.secret) > 0
	}
	return false
}

// Check validates an API key or an Authorization header value and returns the
// authenticated subject. Errors wrap ErrMissingCredentials or
// ErrInvalidCredentials.
func (v *Verifier) Check(apiKey, authorization string) (string, error) {
	switch {
	case !v.Enabled():
		return "", nil

	case v.mode == ModeAPIKey:
		if apiKey == "" {
			return "", ErrMissingCredentials
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), v.key) != 1 {
			return "", ErrInvalidCredentials
		}
		return apiKeySubject, nil

	default:
		tok, ok := strings.CutPrefix(authorization, "Bearer ")
		if !ok || tok == "" {
			return "", ErrMissingCredentials
		}
		return v.verifyToken(tok)
	}
}

func (v *Verifier) verifyToken(tok string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidCredentials)
	}
	return claims.Subject, nil
}

// Sign issues an HS256 token for subject that expires after ttl.
func (v *Verifier) Sign(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: empty subject")
	}
	if len(v.secret) == 0 {
		return "", errors.New("auth: jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
