package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/meetup/internal/config"
	"github.com/sakif/meetup/internal/repository"
	"github.com/sakif/meetup/internal/repository/postgres"
	sqliteRepo "github.com/sakif/meetup/internal/repository/sqlite"
)

// OpenStore opens the store selected by DB_DRIVER and runs its migrations.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with the
// sqlite driver package.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return db, nil

	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			// os.MkdirAll is `mkdir -p`: create data/ on first run.
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
}
