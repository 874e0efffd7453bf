// Package main is the entry point for the meetup API server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables, optional .env file)
// 2. Create dependencies (logger, database connection)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points. This
// project has two: cmd/server (the API) and cmd/seed (demo data).
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/meetup/internal/config"
	"github.com/sakif/meetup/internal/logging"
	"github.com/sakif/meetup/internal/seed"
	"github.com/sakif/meetup/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reads .env (if present) and then the environment.
	// The logger is not built yet, so a bad config is reported on stderr
	// by a plain bootstrap logger.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := logging.New(os.Stderr, cfg.LogLevel)

	// === 3. OPEN THE DATABASE ===
	// Give a slow Postgres container up to a minute to come up.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	store, err := server.OpenStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. OPTIONAL DEMO DATA ===
	if cfg.Seed {
		if _, err := seed.New(store, logger).Run(context.Background(), time.Now()); err != nil {
			logger.Error("seeding failed", slog.String("error", err.Error()))
			store.Close()
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, store, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
