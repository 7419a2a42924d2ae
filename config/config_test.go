package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "clover-api", cfg.AppName)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.DatabaseConnMaxLifetime)
	assert.Equal(t, []string{"GET", "POST", "DELETE"}, cfg.AllowMethods)
	assert.Equal(t, 30, cfg.MessageRateLimit)
	assert.True(t, cfg.RedisEnabled)
	assert.True(t, cfg.AuthEnabled, "tokens are verified unless switched off")
	assert.False(t, cfg.AuthTrustHeaders)
	assert.False(t, cfg.GateFailClosed)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_NAME=from_dotenv\nPORT=4000\n"), 0o600))
	configFile := filepath.Join(dir, "clover.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("db_name: from_file\nredis_port: 6380\n"), 0o600))

	// godotenv and the config file write straight into the process environment
	t.Cleanup(func() {
		_ = os.Unsetenv("DB_NAME")
		_ = os.Unsetenv("REDIS_PORT")
	})
	t.Setenv("PORT", "5000")
	t.Setenv("GATE_FAIL_CLOSED", "true")
	t.Setenv("MESSAGE_RATE_WINDOW", "30s")

	cfg, err := config.Load(envFile, configFile)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "from_dotenv", cfg.DatabaseName)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.True(t, cfg.GateFailClosed)
	assert.Equal(t, 30*time.Second, cfg.MessageRateWindow)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"), "")
	assert.NoError(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("BADGE_CACHE_TTL", "soon")

	_, err := config.Load("", "")
	assert.ErrorContains(t, err, "soon")
}

func TestLoad_ConfigFileLists(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "clover.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("http_server_allow_origins:\n  - https://a.example\n  - https://b.example\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("HTTP_SERVER_ALLOW_ORIGINS") })

	cfg, err := config.Load("", configFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
}
