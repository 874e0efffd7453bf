package handler

import (
	"crypto/rand"
	"log/slog"
	"net/http"

	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/middleware"
	"github.com/sakif/meetup/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler manages the OAuth2 login flow, the session cookie and the
// identity endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → redirect the browser to the provider's login page
//   - HandleCallback → receive the code, record the user, set the session
//   - HandleToken    → exchange the session for a bearer token
//   - HandleUser     → whoever is calling, or an empty body
//   - HandleLogout   → clear the session, hand back the provider logout URL
//
// provider is nil when OAuth is not configured. The login routes are then
// not mounted and callers can only use bearer tokens.
type AuthHandler struct {
	provider    *auth.OIDCProvider
	auth        *service.AuthService
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. frontendURL is where the browser
// lands after a successful login.
func NewAuthHandler(
	provider *auth.OIDCProvider,
	authService *service.AuthService,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider:    provider,
		auth:        authService,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// UserClaims is the public view of an identity.
type UserClaims struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func claimsOf(id auth.Identity) UserClaims {
	return UserClaims{Sub: id.Subject, Name: id.Name, Email: id.Email, Picture: id.Picture}
}

// TokenResponse is returned by POST /api/auth/token.
type TokenResponse struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresIn int64  `json:"expiresIn"` // seconds
}

// LogoutResponse is returned by POST /api/logout. The SPA sends the user to
// LogoutURL with IDToken as id_token_hint to end the provider session too.
type LogoutResponse struct {
	LogoutURL string `json:"logoutUrl"`
	IDToken   string `json:"idToken"`
}

// HandleLogin redirects the user to the provider's authorization page.
//
// HTTP: GET /oauth2/authorization/auth0
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When the provider calls back, HandleCallback verifies the state matches.
// This proves the callback was initiated by this server, not an attacker.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   !middleware.IsLocalRequest(r),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// HandleCallback completes the OAuth login flow.
//
// HTTP: GET /login/oauth2/code/auth0?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the provider profile and ID token
//  3. Upsert the user and sign a session (AuthService.CompleteLogin)
//  4. Store the session in the HttpOnly SESSION cookie
//  5. Redirect to the frontend
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || r.URL.Query().Get("state") != c.Value {
		h.logger.Warn("auth callback: missing or mismatched state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	// --- Step 2: Exchange the code ---
	info, idToken, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Record the user, sign the session ---
	result, err := h.auth.CompleteLogin(r.Context(), info, idToken)
	if err != nil {
		h.logger.Error("auth callback: completing login failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Session cookie ---
	setSessionCookie(w, r, result.Session, int(auth.SessionTTL.Seconds()))

	// --- Step 5: Back to the app ---
	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

// HandleToken issues a bearer token for the logged-in browser session.
//
// HTTP: POST /api/auth/token
// Auth: SESSION cookie
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		auth.WriteUnauthorized(w)
		return
	}

	token, err := h.auth.IssueToken(id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		Type:      "Bearer",
		ExpiresIn: int64(h.auth.TokenTTL().Seconds()),
	})
}

// HandleBearerUser returns the claims of a bearer token.
//
// HTTP: GET /api/auth/user
// Auth: Bearer token only; a session cookie alone is 401.
func (h *AuthHandler) HandleBearerUser(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.Source != auth.SourceBearer {
		auth.WriteUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, claimsOf(id))
}

// HandleUser returns whoever is calling.
//
// HTTP: GET /api/user
// Auth: optional
//
// The SPA calls this on startup to decide between "Login" and the user
// menu, so an anonymous caller gets 200 with an empty body, not 401.
func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeText(w, http.StatusOK, "")
		return
	}
	writeJSON(w, http.StatusOK, claimsOf(id))
}

// HandleLogout ends the session.
//
// HTTP: POST /api/logout
//
// Clearing the cookie logs the user out of this API. The provider still
// has its own session, so the response tells the SPA where to end it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	setSessionCookie(w, r, "", -1)

	resp := LogoutResponse{IDToken: id.IDToken}
	if h.provider != nil {
		resp.LogoutURL = h.provider.LogoutURL()
	}

	h.logger.Info("user logged out", slog.String("userID", id.Subject))
	writeJSON(w, http.StatusOK, resp)
}

// setSessionCookie writes (or, with maxAge < 0, deletes) the SESSION
// cookie.
//
// The frontend is served from another site in production, so the cookie
// needs SameSite=None, which browsers only accept together with Secure.
// On localhost plain Lax works over http.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	c := &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if !middleware.IsLocalRequest(r) {
		c.SameSite = http.SameSiteNoneMode
		c.Secure = true
	}
	http.SetCookie(w, c)
}
