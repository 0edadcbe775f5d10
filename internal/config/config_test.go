package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef0123")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "equiptrack", cfg.MongoDB.DBName)
	assert.True(t, cfg.MongoDB.Transactions)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Storage.URLExpiry)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 5, cfg.Auth.SignInPerMinute)
	assert.Equal(t, "5 0 * * *", cfg.Reporting.SnapshotCron)
	assert.False(t, cfg.Sheets.Enabled())
	assert.False(t, cfg.Notifier.Enabled())
	assert.Equal(t, time.UTC, cfg.Reporting.Location())
}

func TestLoadFromEnvFile(t *testing.T) {
	setBaseEnv(t)
	// godotenv never overrides variables that are already present.
	for _, key := range []string{"APP_PORT", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := "APP_PORT=9090\nCORS_ALLOWED_ORIGINS=https://a.example, https://b.example\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing mongo uri", env: map[string]string{"MONGODB_URI": ""}},
		{name: "short jwt secret", env: map[string]string{"AUTH_JWT_SECRET": "short"}},
		{name: "s3 without bucket", env: map[string]string{"STORAGE_DRIVER": "s3"}},
		{name: "unknown storage driver", env: map[string]string{"STORAGE_DRIVER": "ftp"}},
		{name: "bad timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{name: "bad duration", env: map[string]string{"AUTH_SESSION_TTL": "forever"}},
		{name: "bad bool", env: map[string]string{"MONGODB_TRANSACTIONS": "perhaps"}},
		{name: "sheets without id", env: map[string]string{"GOOGLE_SHEETS_CREDENTIALS_PATH": "/tmp/creds.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
