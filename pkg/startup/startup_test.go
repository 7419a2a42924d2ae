package startup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/startup"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_DependencyOrder(t *testing.T) {
	var started, stopped []string
	dep := func(name string, requires ...string) *startup.Dependency {
		return &startup.Dependency{
			Name:     name,
			Requires: requires,
			OnStart:  func(context.Context) error { started = append(started, name); return nil },
			OnStop:   func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := startup.NewStartup(silentLogger(), 1)
	s.AddDependency(dep("migrations", "postgres"))
	s.AddDependency(dep("redis"))
	s.AddDependency(dep("postgres"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"postgres", "migrations", "redis"}, started)
	assert.Equal(t, startup.StartupStatusStarted, s.Status("migrations"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, "migrations", stopped[0], "dependents stop first")
	assert.Len(t, stopped, 3)
}

func TestStartup_FailsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	s := startup.NewStartup(silentLogger(), 1)
	s.AddDependency(&startup.Dependency{
		Name: "postgres",
		OnStart: func(context.Context) error {
			attempts++
			return errors.New("connection refused")
		},
	})

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, startup.StartupStatusFailed, s.Status("postgres"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	s := startup.NewStartup(silentLogger(), 1)
	s.AddDependency(&startup.Dependency{Name: "migrations", Requires: []string{"postgres"}})

	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'postgres'")
}
