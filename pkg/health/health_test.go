package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/health"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func serve(t *testing.T, c *health.Checker, path string) (int, health.Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestReadiness_NotReadyUntilStarted(t *testing.T) {
	c := health.NewChecker("test").Require("database", health.PingFunc(ok))

	code, _ := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	c.SetReady(true)
	code, resp := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusHealthy, resp.Status)
}

func TestHealth_OptionalDependencyDegrades(t *testing.T) {
	c := health.NewChecker("test").
		Require("database", health.PingFunc(ok)).
		Optional("redis", health.PingFunc(down))

	code, resp := serve(t, c, "/api/v1/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusDegraded, resp.Status)
	assert.Equal(t, health.StatusDegraded, resp.Checks["redis"].Status)
}

func TestHealth_RequiredDependencyFails(t *testing.T) {
	c := health.NewChecker("test").Require("database", health.PingFunc(down))

	code, resp := serve(t, c, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, health.StatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["database"].Message)
}

func TestLiveness(t *testing.T) {
	code, resp := serve(t, health.NewChecker("1.2.3"), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.2.3", resp.Version)
}
