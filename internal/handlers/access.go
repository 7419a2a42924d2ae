package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/access"
)

type AccessHandler struct {
	access *access.Service
}

func NewAccessHandler(svc *access.Service) *AccessHandler {
	return &AccessHandler{access: svc}
}

// RegisterRoutes registers the access request routes. On the bare
// /access-requests/:id routes the id is the target account; on the review
// routes it is the request.
func (h *AccessHandler) RegisterRoutes(g *echo.Group) {
	requests := g.Group("/access-requests")
	requests.GET("/pending", h.ListPending)
	requests.POST("/:id", h.Request)
	requests.GET("/:id", h.Status)
	requests.POST("/:id/approve", h.Approve)
	requests.POST("/:id/deny", h.Deny)
}

func (h *AccessHandler) Request(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	targetID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.access.RequestAccess(c.Request().Context(), userID, targetID)
	if err != nil {
		return err
	}
	if result.Outcome == access.OutcomeCreated {
		return CreatedResponse(c, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *AccessHandler) Status(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	targetID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	status, err := h.access.GetRequestStatus(c.Request().Context(), userID, targetID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, status)
}

func (h *AccessHandler) Approve(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	request, err := h.access.ApproveAccess(c.Request().Context(), requestID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, request)
}

func (h *AccessHandler) Deny(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	request, err := h.access.DenyAccess(c.Request().Context(), requestID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, request)
}

func (h *AccessHandler) ListPending(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}

	pending, err := h.access.ListPendingForTarget(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, pending)
}
