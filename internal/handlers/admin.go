package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/conversation"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/profiles"
)

// AdminHandler serves the staff-only profile review and messaging routes
type AdminHandler struct {
	profiles      *profiles.Service
	conversations *conversation.Service
}

func NewAdminHandler(profiles *profiles.Service, conversations *conversation.Service) *AdminHandler {
	return &AdminHandler{profiles: profiles, conversations: conversations}
}

func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("/admin", middleware.RequireStaff())
	admin.GET("/profiles/pending", h.ListPending)
	admin.POST("/profiles/:user_id/approve", h.Approve)
	admin.POST("/profiles/:user_id/revoke", h.Revoke)
	admin.POST("/messages", h.Message)
}

type AdminMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	Text        string    `json:"text" validate:"required,max=5000"`
}

func (h *AdminHandler) ListPending(c echo.Context) error {
	limit, err := ParseLimit(c, defaultPageSize)
	if err != nil {
		return err
	}

	pending, err := h.profiles.ListAwaitingApproval(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, pending)
}

func (h *AdminHandler) Approve(c echo.Context) error {
	staffID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	userID, err := ParseUUID(c, "user_id")
	if err != nil {
		return err
	}

	profile, err := h.profiles.Approve(c.Request().Context(), staffID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, profile)
}

func (h *AdminHandler) Revoke(c echo.Context) error {
	staffID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	userID, err := ParseUUID(c, "user_id")
	if err != nil {
		return err
	}

	profile, err := h.profiles.Revoke(c.Request().Context(), staffID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, profile)
}

func (h *AdminHandler) Message(c echo.Context) error {
	staffID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	req, err := BindRequest[AdminMessageRequest](c)
	if err != nil {
		return err
	}

	message, err := h.conversations.PostAdminMessage(c.Request().Context(), staffID, req.RecipientID, req.Text)
	if err != nil {
		return err
	}
	return CreatedResponse(c, message)
}
