// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// cross-compilation works everywhere Go works. The whole database lives in a
// single file next to the binary, or in memory for tests.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Tx      : a transaction
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/repository"
)

// compile-time check that *DB satisfies every repository contract at once
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/meetup.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (great for tests, lost on close)
//
// PER-CONNECTION PRAGMAS:
// SQLite settings like foreign_keys apply to ONE connection, but sql.DB is a
// pool that may open several. Passing them as _pragma DSN parameters makes
// the driver apply them to every connection it opens, so ON DELETE CASCADE
// works no matter which pooled connection runs the DELETE.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new, empty database.
	// Pinning the pool to a single connection keeps one shared database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode lets readers proceed while a write is in progress.
	// It is persistent in the database file, so setting it once is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
//
// RELATIONSHIPS:
//
//	users ──< group_members >── user_group ──< events ──< event_attendees >── users
//
// The join tables use composite primary keys, so a user can appear in a
// group or an event's attendee list at most once. That constraint is what
// makes "join" an insert-or-ignore rather than a check-then-insert.
//
// Deleting a group cascades to its events and memberships, and deleting an
// event cascades to its attendance rows.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL DEFAULT '',
			email               TEXT UNIQUE,
			profile_picture_url TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_group (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			name              TEXT NOT NULL UNIQUE,
			address           TEXT NOT NULL DEFAULT '',
			city              TEXT NOT NULL DEFAULT '',
			state_or_province TEXT NOT NULL DEFAULT '',
			country           TEXT NOT NULL DEFAULT '',
			postal_code       TEXT NOT NULL DEFAULT '',
			image_url         TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL REFERENCES user_group(id) ON DELETE CASCADE,
			user_id  TEXT    NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (group_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating group tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			date        DATETIME NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			group_id    INTEGER NOT NULL REFERENCES user_group(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
		CREATE INDEX IF NOT EXISTS idx_events_group_id ON events(group_id);

		CREATE TABLE IF NOT EXISTS event_attendees (
			event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			user_id  TEXT    NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (event_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_event_attendees_user_id ON event_attendees(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating event tables: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
//
// The driver returns *moderncsqlite.Error carrying SQLite's extended result
// code, which distinguishes a uniqueness clash from, say, a foreign key
// failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// foldFunc is a SQL function lowercasing text the way strings.ToLower does.
// SQLite's own LOWER() only folds ASCII, so "École" would never match a
// search for "école".
const foldFunc = "casefold"

func init() {
	moderncsqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1,
		func(_ *moderncsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
}

// likePattern turns a free-text query into a LIKE pattern matching it as a
// substring of a column passed through foldFunc. LIKE wildcards in the
// query are escaped with '\' so that a search for "50%" matches literally.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(q)) + "%"
}

// checkAffected translates "zero rows changed" into a NotFound error.
func checkAffected(result sql.Result, resource string, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, fmt.Sprint(id))
	}
	return nil
}
