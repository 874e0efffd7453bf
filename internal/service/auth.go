package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/model"
)

// AuthService is the business logic layer for authentication. It sits
// between the HTTP handlers and the user/token machinery:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserService (DB)
//	                   ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Finish the OAuth2 login: record the user, sign the session
//   - Exchange a browser session for a bearer token
//
// It does NOT set cookies or redirect; those are HTTP concerns.
type AuthService struct {
	users  *UserService
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(users *UserService, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// LoginResult is returned by CompleteLogin. It bundles the user record and
// the signed session so the handler can set the cookie and redirect in one
// step.
type LoginResult struct {
	User     *model.User
	Identity auth.Identity
	Session  string
}

// CompleteLogin handles the end of the OAuth2 callback.
//
// After the handler exchanges the authorization code for the provider's
// profile, this method:
//
//  1. Upserts the user (create on first login, refresh name/email later)
//  2. Signs a session token carrying the profile and the provider ID token
//  3. Returns both so the handler can set the SESSION cookie
func (s *AuthService) CompleteLogin(ctx context.Context, info *auth.UserInfo, idToken string) (*LoginResult, error) {
	if info == nil {
		return nil, errors.New("service/auth: user info must not be nil")
	}

	id := info.Identity(idToken)
	user, err := s.users.EnsureUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: recording login: %w", err)
	}

	// The stored picture wins, so a user without a provider picture keeps
	// the placeholder the frontend has already shown them.
	id.Picture = user.ProfilePictureURL

	session, err := s.tokens.IssueSession(id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing session for %s: %w", id.Subject, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &LoginResult{User: user, Identity: id, Session: session}, nil
}

// IssueToken exchanges a session identity for a bearer token.
//
// Only browser sessions may mint bearer tokens. Letting a bearer token
// mint another one would let a leaked token renew itself forever.
func (s *AuthService) IssueToken(id auth.Identity) (string, error) {
	if id.Subject == "" || id.Source != auth.SourceSession {
		return "", apperror.Unauthorized()
	}

	token, err := s.tokens.Issue(id)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing token for %s: %w", id.Subject, err)
	}

	s.logger.Info("bearer token issued", slog.String("userID", id.Subject))
	return token, nil
}

// TokenTTL is the lifetime of tokens returned by IssueToken.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}
