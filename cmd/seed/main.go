// Command seed loads the demo data set into the configured database and
// exits. It reads the same configuration as the server:
//
//	DB_DRIVER=sqlite DB_PATH=data/meetup.db JWT_SECRET=... go run ./cmd/seed
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakif/meetup/internal/config"
	"github.com/sakif/meetup/internal/logging"
	"github.com/sakif/meetup/internal/seed"
	"github.com/sakif/meetup/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	// Ctrl+C stops the run; rerunning finishes whatever it left behind.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	start := time.Now()
	res, err := seed.New(store, logger).Run(ctx, start)
	if err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}

	logger.Info("done",
		slog.Int("groups", res.Groups),
		slog.Int("events", res.Events),
		slog.Duration("took", time.Since(start)),
	)
}
