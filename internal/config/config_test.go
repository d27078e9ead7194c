package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	noEnvFile(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "carbon_tracker", cfg.MongoDB)
	assert.Equal(t, DriverRedis, cfg.SessionDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "session", cfg.SessionCookie)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.SharingEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	noEnvFile(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SESSION_DRIVER", "memory")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, DriverMemory, cfg.SessionDriver)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.SharingEnabled())
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MONGO_DB=from_file\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("MONGO_DB") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.MongoDB)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StoreDriver:   DriverMemory,
			SessionDriver: DriverMemory,
			SessionTTL:    time.Hour,
			SessionCookie: "session",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, "unknown STORE_DRIVER"},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres }, "POSTGRES_DSN"},
		{"mongo without uri", func(c *Config) { c.StoreDriver = DriverMongo }, "MONGO_URI"},
		{"unknown session", func(c *Config) { c.SessionDriver = "jwt" }, "unknown SESSION_DRIVER"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "SESSION_TTL"},
		{"empty cookie", func(c *Config) { c.SessionCookie = "" }, "SESSION_COOKIE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
