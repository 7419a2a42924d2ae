package cli

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/config"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := []string{}
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)

	flag := root.PersistentFlags().Lookup("env-file")
	require.NotNil(t, flag)
	assert.Equal(t, ".env", flag.DefValue)
}

func TestNewLogger(t *testing.T) {
	cfg, err := config.Load("", "")
	require.NoError(t, err)

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}

func TestConnectionConfig(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_CONN_MAX_LIFETIME", "1m")
	cfg, err := config.Load("", "")
	require.NoError(t, err)

	conn := connectionConfig(cfg)
	assert.Equal(t, "db.internal", conn.Host)
	assert.Equal(t, "clover", conn.Name)
	assert.Contains(t, conn.DSN(), "host=db.internal port=5432")
}

func TestSelectAuthMode_DefaultsToOIDC(t *testing.T) {
	cfg, err := config.Load("", "")
	require.NoError(t, err)

	mode, err := selectAuthMode(cfg)
	require.NoError(t, err)
	assert.Equal(t, authOIDC, mode)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	_, err = authMiddleware(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "AUTH_ISSUER_URL", "no issuer never falls back to trusting headers")
}

func TestSelectAuthMode_HeadersNeedExplicitOptIn(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "false")
	cfg, err := config.Load("", "")
	require.NoError(t, err)

	_, err = selectAuthMode(cfg)
	assert.Error(t, err)

	cfg.AuthTrustHeaders = true
	mode, err := selectAuthMode(cfg)
	require.NoError(t, err)
	assert.Equal(t, authTrustedHeaders, mode)

	cfg.AuthEnabled = true
	mode, err = selectAuthMode(cfg)
	require.NoError(t, err)
	assert.Equal(t, authOIDC, mode, "tokens win when both are set")
}
