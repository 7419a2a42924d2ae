// Package testenv starts the throwaway infrastructure integration tests run
// against. Containers are started once per test binary and reaped by the
// testcontainers sidecar when the binary exits.
package testenv

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
)

const (
	postgresUser     = "clover"
	postgresPassword = "password"
	postgresDB       = "clover"
)

var (
	pgOnce sync.Once
	pgDB   database.DB
	pgErr  error

	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// Logger returns a development zap logger behind the ectologger interface.
func Logger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// SilentLogger discards everything.
func SilentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// Postgres returns a migrated database shared by every test in the binary.
// It skips the test in short mode.
func Postgres(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pgOnce.Do(func() {
		pgDB, pgErr = startPostgres(context.Background())
	})
	require.NoError(t, pgErr, "Failed to start test database")
	return pgDB
}

// Redis returns a client for a shared redis container, flushed before use.
func Redis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisOnce.Do(func() {
		redisAddr, redisErr = startRedis(context.Background())
	})
	require.NoError(t, redisErr, "Failed to start test redis")

	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	require.NoError(t, client.FlushAll(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startPostgres(ctx context.Context) (database.DB, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}

	logger := SilentLogger()
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:         host,
		Port:         port.Port(),
		User:         postgresUser,
		Password:     postgresPassword,
		Name:         postgresDB,
		SSLMode:      "disable",
		MaxOpenConns: 20,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: MigrationsPath(),
	})
	if err := migrations.MigratePostgres(db, postgresDB); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}
	return db, nil
}

func startRedis(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start redis: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

// MigrationsPath is the absolute path of db/pg regardless of which package
// the test binary runs in.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}
