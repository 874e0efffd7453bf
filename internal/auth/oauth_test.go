package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves the two endpoints Exchange talks to.
func fakeProvider(t *testing.T, userinfo map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "id-token-xyz",
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userinfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOIDCProvider_Endpoints(t *testing.T) {
	p := NewOIDCProvider("dev-123.us.auth0.com/", "client-id", "secret", "http://localhost:8080/login/oauth2/code/auth0")

	assert.Equal(t, "https://dev-123.us.auth0.com/oidc/logout", p.LogoutURL())

	u, err := url.Parse(p.AuthURL("state-abc"))
	require.NoError(t, err)
	assert.Equal(t, "dev-123.us.auth0.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/login/oauth2/code/auth0", q.Get("redirect_uri"))
}

func TestExchange(t *testing.T) {
	srv := fakeProvider(t, map[string]string{
		"sub":     "auth0|jane",
		"name":    "Jane Doe",
		"email":   "jane@example.com",
		"picture": "https://img.example/jane.png",
	})
	p := NewOIDCProvider(srv.URL, "client-id", "secret", "http://localhost/cb")

	info, idToken, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "id-token-xyz", idToken)
	assert.Equal(t, "auth0|jane", info.Subject)
	assert.Equal(t, "Jane Doe", info.Name)

	id := info.Identity(idToken)
	assert.Equal(t, SourceSession, id.Source)
	assert.Equal(t, "id-token-xyz", id.IDToken)
	assert.Equal(t, "jane@example.com", id.Email)
}

func TestExchange_BadCode(t *testing.T) {
	srv := fakeProvider(t, map[string]string{"sub": "auth0|jane"})
	p := NewOIDCProvider(srv.URL, "client-id", "secret", "http://localhost/cb")

	_, _, err := p.Exchange(context.Background(), "stolen-code")
	assert.Error(t, err)
}

func TestExchange_NoSubject(t *testing.T) {
	srv := fakeProvider(t, map[string]string{"name": "ghost"})
	p := NewOIDCProvider(srv.URL, "client-id", "secret", "http://localhost/cb")

	_, _, err := p.Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}
