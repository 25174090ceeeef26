// Package auth guards the optional debug/introspection surface (never the
// public HLS routes — those are deliberately unauthenticated per spec) with
// a single static bearer token supplied out of band by the operator.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing authorization token")
	ErrInvalidToken = errors.New("invalid token")
)

// Config holds the operator credential for the debug surface. There is no
// multi-user account store, no session issuance, and no expiry: Token is
// compared directly against every request's bearer token.
type Config struct {
	Token string
}

// Auth guards the debug mux with a single static bearer token.
type Auth struct {
	token string
}

// New creates a new Auth instance guarding the debug endpoint with cfg's
// static token.
func New(cfg Config) *Auth {
	return &Auth{token: cfg.Token}
}

// authorized reports whether token matches the configured credential, using
// a constant-time comparison so response timing can't be used to recover
// the token byte by byte.
func (a *Auth) authorized(token string) bool {
	if token == "" || a.token == "" {
		return false
	}
	given := sha256.Sum256([]byte(token))
	want := sha256.Sum256([]byte(a.token))
	return hmac.Equal(given[:], want[:])
}

// Middleware returns an HTTP middleware that requires a valid bearer token in
// the Authorization header. If the token is missing or doesn't match, a 401
// response is returned.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.checkRequest(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MiddlewareFunc is an http.HandlerFunc-shaped equivalent of Middleware, for
// wiring directly into routers that want a plain handler func.
func (a *Auth) MiddlewareFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.checkRequest(w, r) {
			return
		}
		next(w, r)
	}
}

// checkRequest validates the bearer token on r, writing a 401 on failure.
func (a *Auth) checkRequest(w http.ResponseWriter, r *http.Request) bool {
	token, err := extractBearerToken(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !a.authorized(token) {
		writeAuthError(w, http.StatusUnauthorized, "invalid token")
		return false
	}
	return true
}

// extractBearerToken extracts the token from the Authorization header.
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidToken
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}

	return token, nil
}

// writeAuthError writes a JSON error response for authentication failures.
// Error messages are intentionally generic to avoid leaking information.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "error",
		"error":  message,
	})
}
