package postgres

import (
	"context"
	"fmt"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
)

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, profile_picture_url)
		 VALUES ($1, $2, NULLIF($3::text, ''), $4)`,
		user.ID, user.Name, user.Email, user.ProfilePictureURL,
	)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return apperror.Conflict("user", "id or email", user.ID+" / "+user.Email)
		}
		return fmt.Errorf("postgres: creating user %s: %w", user.ID, err)
	}
	return nil
}

// UpsertUser has the same merge rules as the sqlite backend. RETURNING
// hands back the stored row in the same round trip.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, profile_picture_url)
		 VALUES ($1, $2, NULLIF($3::text, ''), $4)
		 ON CONFLICT (id) DO UPDATE SET
			name  = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			email = COALESCE(EXCLUDED.email, users.email),
			profile_picture_url = CASE WHEN users.profile_picture_url = ''
				THEN EXCLUDED.profile_picture_url ELSE users.profile_picture_url END
		 RETURNING id, name, COALESCE(email, ''), profile_picture_url`,
		user.ID, user.Name, user.Email, user.ProfilePictureURL,
	).Scan(&user.ID, &user.Name, &user.Email, &user.ProfilePictureURL)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return apperror.Conflict("user", "email", user.Email)
		}
		return fmt.Errorf("postgres: upserting user %s: %w", user.ID, err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(email, ''), profile_picture_url FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.ProfilePictureURL)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return &u, nil
}
