// Package logging builds the process-wide structured logger.
//
// Logs go through log/slog with a tint handler, which prints colored,
// human-friendly lines. Colors are turned off automatically when the output
// is not a terminal (for example under docker logs or in CI).
//
// Usage:
//
//	logger := logging.New(os.Stderr, cfg.LogLevel)
//	logger.Info("server starting", slog.Int("port", 8080))
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// New returns a logger writing to w at the given level and installs it as
// the slog default, so packages that log through slog.Default agree with
// the injected logger.
func New(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		AddSource:  level <= slog.LevelDebug,
		NoColor:    !isTerminal(w),
	}))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// isTerminal is false for character devices that are not terminals, such
// as /dev/null.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
