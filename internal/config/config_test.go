package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trompamusic/solidauth/backend"
)

// clearEnv blanks every CONFIG_ variable the package reads so the test
// process environment can't leak into Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_BASE_URL", "CONFIG_REDIRECT_URL", "CONFIG_BACKEND",
		"CONFIG_REDIS_URL", "CONFIG_DATABASE_URL", "CONFIG_SECRET_KEY",
		"CONFIG_LISTEN", "CONFIG_ALWAYS_USE_CLIENT_URL",
		"CONFIG_LOG_LEVEL", "CONFIG_CLIENT_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		clearEnv(t)
		t.Setenv("CONFIG_BACKEND", "memory")

		cfg, err := Load()
		require.NoError(err)
		assert.Equal(BackendMemory, cfg.Backend)
		assert.Equal(":5000", cfg.Listen)
		assert.Equal("info", cfg.LogLevel)
		assert.Equal("solidauth", cfg.ClientName)
		assert.False(cfg.AlwaysUseClientURL)
	})
	t.Run("full", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		clearEnv(t)
		t.Setenv("CONFIG_BACKEND", "redis")
		t.Setenv("CONFIG_REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("CONFIG_BASE_URL", "https://auth.example.com/")
		t.Setenv("CONFIG_REDIRECT_URL", "https://auth.example.com/redirect")
		t.Setenv("CONFIG_SECRET_KEY", "super-secret")
		t.Setenv("CONFIG_LISTEN", ":8080")
		t.Setenv("CONFIG_ALWAYS_USE_CLIENT_URL", "true")

		cfg, err := Load()
		require.NoError(err)
		assert.Equal(BackendRedis, cfg.Backend)
		assert.Equal("redis://localhost:6379/0", cfg.RedisURL)
		assert.Equal(":8080", cfg.Listen)
		assert.True(cfg.AlwaysUseClientURL)
		require.NoError(cfg.ValidateWeb())
	})
	t.Run("db-backend-needs-database-url", func(t *testing.T) {
		assert := assert.New(t)
		clearEnv(t)
		// db is the default backend
		_, err := Load()
		assert.ErrorContains(err, "CONFIG_DATABASE_URL")
	})
	t.Run("redis-backend-needs-redis-url", func(t *testing.T) {
		assert := assert.New(t)
		clearEnv(t)
		t.Setenv("CONFIG_BACKEND", "redis")
		_, err := Load()
		assert.ErrorContains(err, "CONFIG_REDIS_URL")
	})
	t.Run("unknown-backend", func(t *testing.T) {
		assert := assert.New(t)
		clearEnv(t)
		t.Setenv("CONFIG_BACKEND", "etcd")
		_, err := Load()
		assert.ErrorContains(err, "CONFIG_BACKEND")
	})
}

func TestConfig_ValidateWeb(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	cfg := &Config{}
	err := cfg.ValidateWeb()
	require.Error(err)
	assert.ErrorContains(err, "CONFIG_BASE_URL")
	assert.ErrorContains(err, "CONFIG_REDIRECT_URL")
	assert.ErrorContains(err, "CONFIG_SECRET_KEY")

	cfg = &Config{
		BaseURL:     "https://auth.example.com",
		RedirectURL: "https://auth.example.com/redirect",
		SecretKey:   "super-secret",
	}
	require.NoError(cfg.ValidateWeb())
}

func TestConfig_NewBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b, err := (&Config{Backend: BackendMemory}).NewBackend(ctx)
		require.NoError(err)
		_, ok := b.(*backend.Memory)
		assert.True(ok)
	})
	t.Run("unknown", func(t *testing.T) {
		assert := assert.New(t)
		_, err := (&Config{Backend: "etcd"}).NewBackend(ctx)
		assert.ErrorContains(err, "unknown backend")
	})
}
