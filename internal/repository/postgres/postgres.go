// Package postgres implements the repository interfaces on PostgreSQL using
// pgx's native connection pool.
//
// It mirrors the sqlite package query for query, so the two backends are
// interchangeable behind repository.Store. The differences are dialect
// only: $n placeholders, IDENTITY columns, TIMESTAMPTZ, ILIKE, and
// RETURNING for generated ids.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/meetup/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// PostgreSQL SQLSTATE codes we translate into domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and runs migrations.
//
// The connection is retried a few times because in docker-compose style
// deployments the database container often starts after the server.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing config: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	const attempts = 5
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		logger.Warn("postgres connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("of", attempts),
			slog.String("error", err.Error()),
		)
		if attempt == attempts {
			return nil, fmt.Errorf("postgres: connecting: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres: connecting: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. Exec without arguments uses the simple
// protocol, which accepts several statements in one call.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL DEFAULT '',
			email               TEXT UNIQUE,
			profile_picture_url TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS user_group (
			id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name              TEXT NOT NULL UNIQUE,
			address           TEXT NOT NULL DEFAULT '',
			city              TEXT NOT NULL DEFAULT '',
			state_or_province TEXT NOT NULL DEFAULT '',
			country           TEXT NOT NULL DEFAULT '',
			postal_code       TEXT NOT NULL DEFAULT '',
			image_url         TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id BIGINT NOT NULL REFERENCES user_group(id) ON DELETE CASCADE,
			user_id  TEXT   NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (group_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id);

		CREATE TABLE IF NOT EXISTS events (
			id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			date        TIMESTAMPTZ NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			group_id    BIGINT NOT NULL REFERENCES user_group(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
		CREATE INDEX IF NOT EXISTS idx_events_group_id ON events(group_id);

		CREATE TABLE IF NOT EXISTS event_attendees (
			event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			user_id  TEXT   NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (event_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_event_attendees_user_id ON event_attendees(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// likePattern escapes ILIKE wildcards so the query matches as a literal
// substring.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// args accumulates query parameters and hands out their $n placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}
