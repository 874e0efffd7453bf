package auth

import (
	"net/http"
	"strings"
)

// SessionCookie is the name of the cookie holding the signed session token.
const SessionCookie = "SESSION"

// unauthorizedBody is the exact body API clients get for a missing or
// rejected credential.
const unauthorizedBody = `{"error": "Unauthorized"}`

// Authenticate is a middleware that resolves the caller's identity if a
// valid credential is present. It never blocks: a missing or invalid
// credential leaves the request anonymous, and RequireIdentity decides
// whether that is acceptable for the route.
//
// CREDENTIAL ORDER:
//  1. Authorization: Bearer <jwt>
//  2. the SESSION cookie
//
// A bearer header wins even when a session cookie is also present, so an
// SPA that switched to tokens keeps behaving the same in the browser.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new one wrapping it.
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := resolve(r, tokens); ok {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity rejects anonymous requests with 401 and a JSON body.
// Mount it after Authenticate.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			WriteUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteUnauthorized writes the standard 401 response.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

func resolve(r *http.Request, tokens *TokenService) (Identity, bool) {
	if raw, ok := bearerToken(r); ok {
		id, err := tokens.ParseBearer(raw)
		return id, err == nil
	}

	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		// http.ErrNoCookie: anonymous, not an error
		return Identity{}, false
	}
	id, err := tokens.ParseSession(cookie.Value)
	return id, err == nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is case-insensitive per RFC 6750.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
