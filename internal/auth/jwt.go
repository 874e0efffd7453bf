// Package auth resolves who is calling the meetup API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Browser visits /oauth2/authorization/auth0 → redirected to the OIDC provider
//  2. Provider calls back /login/oauth2/code/auth0 with a code
//  3. Server exchanges the code for the provider's user info and ID token,
//     upserts the user, and stores a signed session token in the SESSION
//     HttpOnly cookie
//  4. The SPA may trade its session for a bearer token (POST /api/auth/token)
//     and send it as "Authorization: Bearer <jwt>" from then on
//  5. On every request the Authenticate middleware verifies whichever of the
//     two is present and puts an Identity in the request context
//
// Both credentials are JWTs signed with the same HMAC secret. They are told
// apart by audience, so a session cookie can never be replayed as a bearer
// token or the other way round.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"auth0|123","name":"Jane","aud":["api"],"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "meetup"

	audienceBearer  = "api"
	audienceSession = "session"

	// SessionTTL is how long a browser session lasts after login.
	SessionTTL = 24 * time.Hour
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. ttl is the lifetime of bearer
// tokens; sessions always last SessionTTL.
//
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Claims is the JWT payload. The profile claims use the standard OIDC
// names, so a client can decode a bearer token the same way it decodes an
// ID token.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	IDToken string `json:"id_token,omitempty"`
	jwt.RegisteredClaims
}

// TTL returns the bearer token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a bearer token for id. The provider ID token is never
// copied into bearer tokens.
func (s *TokenService) Issue(id Identity) (string, error) {
	id.IDToken = ""
	return s.sign(id, audienceBearer, s.ttl)
}

// IssueSession signs the token stored in the SESSION cookie.
func (s *TokenService) IssueSession(id Identity) (string, error) {
	return s.sign(id, audienceSession, SessionTTL)
}

func (s *TokenService) sign(id Identity, audience string, d time.Duration) (string, error) {
	if id.Subject == "" {
		return "", errors.New("auth: cannot sign a token without a subject")
	}

	now := time.Now()
	c := Claims{
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.Picture,
		IDToken: id.IDToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// ParseBearer verifies a bearer token and returns the identity it carries.
func (s *TokenService) ParseBearer(tokenStr string) (Identity, error) {
	return s.parse(tokenStr, audienceBearer, SourceBearer)
}

// ParseSession verifies a session cookie value.
func (s *TokenService) ParseSession(tokenStr string) (Identity, error) {
	return s.parse(tokenStr, audienceSession, SourceSession)
}

// parse verifies signature, expiry, issuer and audience.
//
// ALGORITHM CONFUSION ATTACK:
// Without checking the algorithm, an attacker could send a token signed with
// "none" and the library might accept it. jwt.WithValidMethods prevents this.
func (s *TokenService) parse(tokenStr, audience string, source Source) (Identity, error) {
	var c Claims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.New("auth: token expired")
		}
		return Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid || c.Subject == "" {
		return Identity{}, errors.New("auth: token has no subject")
	}

	id := Identity{
		Subject: c.Subject,
		Name:    c.Name,
		Email:   c.Email,
		Picture: c.Picture,
		Source:  source,
	}
	if source == SourceSession {
		id.IDToken = c.IDToken
	}
	return id, nil
}
