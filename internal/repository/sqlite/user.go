package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
)

// NULLABLE EMAIL:
// The users.email column is UNIQUE, but plenty of identities carry no email
// at all. SQLite treats every NULL as distinct, so we store "" as NULL
// (NULLIF(?, '')) and read it back through sql.NullString. Two users without
// an email never clash; two users with the same email always do.

// CreateUser inserts a new user row.
// Returns apperror.ErrConflict if the id or the email is already taken.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, profile_picture_url)
		 VALUES (?, ?, NULLIF(?, ''), ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.ProfilePictureURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "id or email", user.ID+" / "+user.Email)
		}
		return fmt.Errorf("sqlite: creating user %s: %w", user.ID, err)
	}
	return nil
}

// UpsertUser inserts the user, or refreshes an existing row with the same id.
//
// ON CONFLICT ... DO UPDATE:
// A single statement covers both "first time we see this subject" and "we
// know them already". There is no SELECT-then-INSERT window in which two
// concurrent requests could both decide the row is missing.
//
// Name and email are only overwritten with non-empty values, and the stored
// profile picture is kept unless it was empty, so a sparse identity (e.g. a
// bearer token without a picture claim) never erases data.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, profile_picture_url)
		 VALUES (?, ?, NULLIF(?, ''), ?)
		 ON CONFLICT(id) DO UPDATE SET
			name  = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			email = COALESCE(excluded.email, users.email),
			profile_picture_url = CASE WHEN users.profile_picture_url = ''
				THEN excluded.profile_picture_url ELSE users.profile_picture_url END`,
		user.ID,
		user.Name,
		user.Email,
		user.ProfilePictureURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email", user.Email)
		}
		return fmt.Errorf("sqlite: upserting user %s: %w", user.ID, err)
	}

	stored, err := db.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUser retrieves a user by id (the identity provider subject).
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u     model.User
		email sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, profile_picture_url FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Name, &email, &u.ProfilePictureURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	u.Email = email.String

	return &u, nil
}
