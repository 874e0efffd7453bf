package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/sakif/meetup/internal/auth"
)

// CSRF cookie and header names, the ones Angular/axios clients look for by
// default.
const (
	CSRFCookie = "XSRF-TOKEN"
	CSRFHeader = "X-XSRF-TOKEN"

	// csrfSecretCookie holds gorilla/csrf's signed secret. It is HttpOnly;
	// the SPA only ever sees the masked token in CSRFCookie.
	csrfSecretCookie = "_csrf"
)

const csrfRejectedBody = `{"error": "Invalid CSRF token"}`

// CSRFOptions configures NewCSRF.
type CSRFOptions struct {
	// Key signs the secret cookie. Must be 32 bytes and stable across
	// restarts, or every open tab loses its token.
	Key []byte

	// Secure marks the cookies Secure and SameSite=None, for an API served
	// over HTTPS to a frontend on another site.
	Secure bool

	// TrustedOrigins are the hosts ("app.example.com", "localhost:5173")
	// whose Origin/Referer headers are accepted on writes.
	TrustedOrigins []string
}

// NewCSRF protects cookie-authenticated writes using gorilla/csrf.
//
// HOW IT WORKS:
// gorilla/csrf keeps a secret in a signed HttpOnly cookie and checks that
// every unsafe request carries a token derived from it in the X-XSRF-TOKEN
// header. We hand that token to the SPA in the readable XSRF-TOKEN cookie.
// A forged request from another site makes the browser send the cookies
// but it cannot read XSRF-TOKEN, so it cannot set the header.
//
// Only requests authenticated by the SESSION cookie are checked. A bearer
// token is never sent automatically by the browser, so bearer (and
// anonymous) requests skip the check.
//
// Mount after auth.Authenticate.
func NewCSRF(opts CSRFOptions) func(http.Handler) http.Handler {
	sameSite := csrf.SameSiteLaxMode
	if opts.Secure {
		sameSite = csrf.SameSiteNoneMode
	}

	protect := csrf.Protect(opts.Key,
		csrf.CookieName(csrfSecretCookie),
		csrf.RequestHeader(CSRFHeader),
		csrf.Path("/"),
		csrf.Secure(opts.Secure),
		csrf.SameSite(sameSite),
		csrf.TrustedOrigins(opts.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(rejectCSRF)),
	)

	return func(next http.Handler) http.Handler {
		guarded := protect(exposeToken(next))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := auth.IdentityFromContext(r.Context()); !ok || id.Source != auth.SourceSession {
				r = csrf.UnsafeSkipCheck(r)
			}
			// Without this gorilla/csrf assumes HTTPS and demands a Referer.
			if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
				r = csrf.PlaintextHTTPRequest(r)
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

// exposeToken copies the request's masked token into the readable cookie
// when the client does not have one yet, or when the secret behind it was
// just issued.
func exposeToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := csrf.Token(r); token != "" && needsToken(w, r) {
			setCSRFCookie(w, r, token)
		}
		next.ServeHTTP(w, r)
	})
}

func needsToken(w http.ResponseWriter, r *http.Request) bool {
	if c, err := r.Cookie(CSRFCookie); err != nil || c.Value == "" {
		return true
	}
	for _, v := range w.Header().Values("Set-Cookie") {
		if strings.HasPrefix(v, csrfSecretCookie+"=") {
			return true
		}
	}
	return false
}

func rejectCSRF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(csrfRejectedBody))
}

// setCSRFCookie writes the token cookie. Off localhost the frontend is on
// another site, which needs SameSite=None (and therefore Secure) for the
// browser to send the cookie back.
func setCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	c := &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if !IsLocalRequest(r) {
		c.SameSite = http.SameSiteNoneMode
		c.Secure = true
	}
	http.SetCookie(w, c)
}

// IsLocalRequest reports whether the request was addressed to localhost.
func IsLocalRequest(r *http.Request) bool {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
