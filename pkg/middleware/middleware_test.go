package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	utils "github.com/Ramsey-B/clover/pkg/context"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/middleware"
)

type stubVerifier struct {
	identity *middleware.Identity
	err      error
}

func (s stubVerifier) Verify(context.Context, string) (*middleware.Identity, error) {
	return s.identity, s.err
}

type stubStates struct {
	state gate.AccountState
	err   error
	calls int
}

func (s *stubStates) State(_ context.Context, _ uuid.UUID, staff bool) (gate.AccountState, error) {
	s.calls++
	st := s.state
	st.Authenticated, st.Staff = true, staff
	return st, s.err
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newEcho(auth echo.MiddlewareFunc, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(silentLogger())
	e.Use(middleware.Context(), auth)
	e.Use(mws...)
	whoami := func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]any{
			"user_id":    utils.GetUserID(ctx),
			"staff":      utils.IsStaff(ctx),
			"request_id": utils.GetRequestID(ctx),
		})
	}
	e.GET("/whoami", whoami)
	e.GET("/messages/inbox", whoami)
	e.GET("/api/v1/threads", whoami)
	return e
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthentication(t *testing.T) {
	userID := uuid.New()
	e := newEcho(middleware.Authentication(silentLogger(), stubVerifier{identity: &middleware.Identity{UserID: userID, Staff: true}}))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, userID.String(), body["user_id"])
	assert.Equal(t, true, body["staff"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, rec.Code, "anonymous requests pass through")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "", body["user_id"])
}

func TestAuthentication_Rejects(t *testing.T) {
	e := newEcho(middleware.Authentication(silentLogger(), stubVerifier{err: errors.New("expired")}))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestTrustedHeaders(t *testing.T) {
	e := newEcho(middleware.TrustedHeaders(silentLogger()))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(middleware.HeaderUserID, "nope")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestGate(t *testing.T) {
	states := &stubStates{}
	e := newEcho(middleware.TrustedHeaders(silentLogger()), middleware.Gate(silentLogger(), gate.New(gate.DefaultPolicy()), states))
	userID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	req.Header.Set(middleware.HeaderUserID, userID)
	rec := serve(e, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/preview/", rec.Header().Get(echo.HeaderLocation))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
	req.Header.Set(middleware.HeaderUserID, userID)
	rec = serve(e, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/preview/", body.Meta["redirect_to"])

	states.state = gate.AccountState{Complete: true, Approved: true}
	req = httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	req.Header.Set(middleware.HeaderUserID, userID)
	assert.Equal(t, http.StatusOK, serve(e, req).Code)

	calls := states.calls
	assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)).Code)
	assert.Equal(t, calls, states.calls, "anonymous callers need no profile read")

	states.err = errors.New("store down")
	req = httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	req.Header.Set(middleware.HeaderUserID, userID)
	assert.Equal(t, http.StatusInternalServerError, serve(e, req).Code)
}

func TestRequireStaff(t *testing.T) {
	e := newEcho(middleware.TrustedHeaders(silentLogger()), middleware.RequireStaff())

	assert.Equal(t, http.StatusUnauthorized, serve(e, httptest.NewRequest(http.MethodGet, "/whoami", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(middleware.HeaderUserID, uuid.NewString())
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req.Header.Set(middleware.HeaderStaff, "true")
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestError_DomainErrors(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(silentLogger())
	e.GET("/fail", func(echo.Context) error {
		return apperrors.ErrRateLimited.With("retry_in_seconds", 3)
	})
	e.GET("/boom", func(echo.Context) error {
		return errors.New("dial tcp: connection refused")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Meta["kind"])
	assert.EqualValues(t, 3, body.Meta["retry_in_seconds"])

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Message)
}
