package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/middleware"
)

// GateHandler answers gate decisions for arbitrary paths so clients can
// hide navigation the caller would be redirected away from.
type GateHandler struct {
	gate   *gate.Gate
	states middleware.StateReader
}

func NewGateHandler(g *gate.Gate, states middleware.StateReader) *GateHandler {
	return &GateHandler{gate: g, states: states}
}

func (h *GateHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/gate", h.Decide)
}

func (h *GateHandler) Decide(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing path")
	}

	state, err := middleware.ResolveState(c.Request().Context(), h.states)
	if err != nil {
		return err
	}
	return SuccessResponse(c, h.gate.Decide(state, path))
}
