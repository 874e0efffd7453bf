// Package config loads the server configuration from the environment.
//
// CONFIGURATION SOURCES:
// Values come from environment variables. For local development a .env
// file in the working directory is read first; variables already set in the
// real environment win over the file, so production never depends on it.
//
// Every key has a default except JWT_SECRET, and DATABASE_URL when
// DB_DRIVER=postgres. Load returns an error for anything it cannot use
// instead of silently falling back, so a typo fails at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported storage backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all server configuration.
type Config struct {
	Port int

	// Storage
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Tokens
	JWTSecret string
	TokenTTL  time.Duration

	// OAuth2 / OIDC login. Login routes are only mounted when OAuthDomain
	// and OAuthClientID are both set.
	OAuthDomain       string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthCallbackURL  string

	FrontendURL string
	CORSOrigins []string

	// Location is the zone in which calendar dates ("2025-03-03") are
	// interpreted and reported.
	Location *time.Location

	Seed     bool
	LogLevel slog.Level
}

// OAuthEnabled reports whether the OAuth2 login flow is configured.
func (c *Config) OAuthEnabled() bool {
	return c.OAuthDomain != "" && c.OAuthClientID != ""
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	port, err := getEnvAsInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvAsDuration("TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	seed, err := getEnvAsBool("SEED", false)
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	tz := getEnv("TIME_ZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("config: TIME_ZONE %q: %w", tz, err)
	}

	cfg := &Config{
		Port:              port,
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:            getEnv("DB_PATH", "data/meetup.db"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		TokenTTL:          ttl,
		OAuthDomain:       strings.TrimSuffix(getEnv("OAUTH_DOMAIN", ""), "/"),
		OAuthClientID:     getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
		OAuthCallbackURL:  getEnv("OAUTH_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/login/oauth2/code/auth0", port)),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,https://minmeetup.vercel.app")),
		Location:          loc,
		Seed:              seed,
		LogLevel:          level,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("config: DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q (want %q or %q)", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET is required and must be at least 16 characters")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be positive")
	}
	if c.OAuthDomain != "" && c.OAuthClientSecret == "" {
		return errors.New("config: OAUTH_CLIENT_SECRET is required when OAUTH_DOMAIN is set")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, s)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration: %w", key, s, err)
	}
	return v, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a boolean", key, s)
	}
	return v, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
