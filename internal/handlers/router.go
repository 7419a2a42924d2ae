package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/conversation"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/notifications"
	"github.com/Ramsey-B/clover/pkg/profiles"
)

const APIPrefix = "/api/v1"

type Deps struct {
	Logger        ectologger.Logger
	Gate          *gate.Gate
	Profiles      *profiles.Service
	Conversations *conversation.Service
	Access        *access.Service
	Badges        *notifications.Aggregator
}

// Mount installs the error handler, the request middleware and every API
// route on e. auth establishes the caller; the preview gate runs after it on
// the whole API group.
func Mount(e *echo.Echo, deps Deps, auth echo.MiddlewareFunc) *echo.Group {
	e.HTTPErrorHandler = middleware.Error(deps.Logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(deps.Logger))

	api := e.Group(APIPrefix, auth, middleware.Gate(deps.Logger, deps.Gate, deps.Profiles))

	NewGateHandler(deps.Gate, deps.Profiles).RegisterRoutes(api)
	NewThreadHandler(deps.Conversations).RegisterRoutes(api)
	NewAccessHandler(deps.Access).RegisterRoutes(api)
	NewProfileHandler(deps.Profiles).RegisterRoutes(api)
	NewAdminHandler(deps.Profiles, deps.Conversations).RegisterRoutes(api)
	NewBadgeHandler(deps.Badges).RegisterRoutes(api)

	return api
}
