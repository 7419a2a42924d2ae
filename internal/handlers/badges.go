package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/notifications"
)

type BadgeHandler struct {
	aggregator *notifications.Aggregator
}

func NewBadgeHandler(aggregator *notifications.Aggregator) *BadgeHandler {
	return &BadgeHandler{aggregator: aggregator}
}

func (h *BadgeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/badges", h.Get)
}

// Get always answers 200; counts that cannot be read are 0
func (h *BadgeHandler) Get(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	return SuccessResponse(c, h.aggregator.Badges(c.Request().Context(), userID))
}
