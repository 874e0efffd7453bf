package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "JWT_SECRET", "TOKEN_TTL",
	"OAUTH_DOMAIN", "OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_CALLBACK_URL",
	"FRONTEND_URL", "CORS_ORIGINS", "TIME_ZONE", "SEED", "LOG_LEVEL",
}

// clearEnv unsets every key Load reads. t.Setenv registers the restore,
// then the variable is removed so Load sees it as absent.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "a-secret-of-sixteen+")

	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "data/meetup.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, "http://localhost:8080/login/oauth2/code/auth0", cfg.OAuthCallbackURL)
	assert.Equal(t, "http://localhost:5173", cfg.FrontendURL)
	assert.Equal(t, []string{"http://localhost:5173", "https://minmeetup.vercel.app"}, cfg.CORSOrigins)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.False(t, cfg.Seed)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.OAuthEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/meetup")
	t.Setenv("JWT_SECRET", "a-secret-of-sixteen+")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("OAUTH_DOMAIN", "https://dev-123.us.auth0.com/")
	t.Setenv("OAUTH_CLIENT_ID", "client")
	t.Setenv("OAUTH_CLIENT_SECRET", "shh")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TIME_ZONE", "America/Vancouver")
	t.Setenv("SEED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "https://dev-123.us.auth0.com", cfg.OAuthDomain, "trailing slash trimmed")
	assert.True(t, cfg.OAuthEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "America/Vancouver", cfg.Location.String())
	assert.True(t, cfg.Seed)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"bad port", map[string]string{"PORT": "http"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"bad ttl", map[string]string{"TOKEN_TTL": "forever"}},
		{"negative ttl", map[string]string{"TOKEN_TTL": "-1m"}},
		{"bad seed", map[string]string{"SEED": "maybe"}},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad zone", map[string]string{"TIME_ZONE": "Mars/Olympus"}},
		{"oauth without secret", map[string]string{"OAUTH_DOMAIN": "https://x.auth0.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.name != "missing secret" && tt.name != "short secret" {
				t.Setenv("JWT_SECRET", "a-secret-of-sixteen+")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := fromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("JWT_SECRET=from-dotenv-file-1234\nPORT=7070\n"), 0o600))
	t.Chdir(dir)

	// The real environment wins over the file.
	t.Setenv("PORT", "6060")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv-file-1234", cfg.JWTSecret)
	assert.Equal(t, 6060, cfg.Port)
}

func TestLoad_NoDotEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "a-secret-of-sixteen+")

	_, err := Load()
	assert.NoError(t, err)
}
