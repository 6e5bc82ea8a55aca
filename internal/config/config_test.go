package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, int64(100), cfg.Credits.StartingBalance)
	assert.Equal(t, 5*time.Second, cfg.Credits.TxTimeout)
	assert.Equal(t, []int64{1, 2}, cfg.Credits.AllowedCosts)
	assert.Equal(t, []string{"http://localhost:8100", "https://ficoreafrica.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, uint8(4), cfg.Argon2.Threads)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("CREDITS_STARTING_BALANCE", "25")
	t.Setenv("CREDITS_TX_TIMEOUT", "2s")
	t.Setenv("CREDITS_ALLOWED_COSTS", "1, 2, 5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
	assert.Equal(t, int64(25), cfg.Credits.StartingBalance)
	assert.Equal(t, 2*time.Second, cfg.Credits.TxTimeout)
	assert.Equal(t, []int64{1, 2, 5}, cfg.Credits.AllowedCosts)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("LOG_LEVEL", "")
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("JWT_SECRET_KEY=from-file\nLOG_LEVEL=debug\n"), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWT.SecretKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "")
		_, err := Load("")
		assert.ErrorContains(t, err, "JWT_SECRET_KEY")
	})

	t.Run("bad credit cost", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")
		t.Setenv("CREDITS_ALLOWED_COSTS", "1,zero")
		_, err := Load("")
		assert.ErrorContains(t, err, "invalid credit cost")
	})

	t.Run("negative starting balance", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")
		t.Setenv("CREDITS_STARTING_BALANCE", "-1")
		_, err := Load("")
		assert.ErrorContains(t, err, "starting credit balance")
	})

	t.Run("single connection pool", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")
		t.Setenv("DATABASE_MAX_OPEN_CONNS", "1")
		_, err := Load("")
		assert.ErrorContains(t, err, "at least 2")
	})
}
