// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
// In a well-structured Go web app, code is organised into three layers:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services only know about business rules: who may join a group, what
// "already attending" means, which page size is allowed. They never see an
// http.Request and never write SQL. Handlers translate the errors they
// return (apperror sentinels) into status codes.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces, not *sqlite.DB or
// *postgres.DB. main.go decides which store backs them; tests pass
// in-memory fakes (see fakes_test.go).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/image"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

// UserService keeps the users table in step with the identities that call
// the API.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// EnsureUser makes sure a users row exists for the caller and returns it.
//
// Identities come from the OAuth provider or from a bearer token; nobody
// ever "registers". So before the caller can become a member or an
// attendee, the row their foreign keys point at has to exist. This is an
// upsert keyed by the subject, safe to call on every request.
//
// A caller whose identity carries no picture gets a placeholder seeded by
// their subject. The repository never replaces a stored picture, so the
// placeholder only lands on first sight.
func (s *UserService) EnsureUser(ctx context.Context, id auth.Identity) (*model.User, error) {
	if id.Subject == "" {
		return nil, apperror.Unauthorized()
	}

	user := &model.User{
		ID:                id.Subject,
		Name:              id.Name,
		Email:             id.Email,
		ProfilePictureURL: id.Picture,
	}
	if user.ProfilePictureURL == "" {
		user.ProfilePictureURL = image.ProfileURL(id.Subject)
	}

	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: ensuring user %s: %w", id.Subject, err)
	}

	s.logger.Debug("user ensured", slog.String("userID", user.ID))
	return user, nil
}

// Get returns the stored user for a subject.
func (s *UserService) Get(ctx context.Context, subject string) (*model.User, error) {
	user, err := s.users.GetUser(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", subject, err)
	}
	return user, nil
}
