package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/profiles"
)

type ProfileHandler struct {
	profiles *profiles.Service
}

func NewProfileHandler(svc *profiles.Service) *ProfileHandler {
	return &ProfileHandler{profiles: svc}
}

func (h *ProfileHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/profile/complete", h.Get)
	g.POST("/profile/complete", h.Complete)

	g.GET("/blocks", h.ListBlocked)
	g.POST("/blocks/:user_id", h.Block)
	g.DELETE("/blocks/:user_id", h.Unblock)
}

type CompleteProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=64"`
}

// Get returns the caller's profile as the completion form sees it
func (h *ProfileHandler) Get(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}

	profile, err := h.profiles.Get(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, profile)
}

func (h *ProfileHandler) Complete(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	req, err := BindRequest[CompleteProfileRequest](c)
	if err != nil {
		return err
	}

	profile, err := h.profiles.SubmitComplete(c.Request().Context(), userID, req.DisplayName)
	if err != nil {
		return err
	}
	return SuccessResponse(c, profile)
}

func (h *ProfileHandler) ListBlocked(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}

	blocks, err := h.profiles.ListBlocked(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, blocks)
}

func (h *ProfileHandler) Block(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	blockedID, err := ParseUUID(c, "user_id")
	if err != nil {
		return err
	}

	if err := h.profiles.Block(c.Request().Context(), userID, blockedID); err != nil {
		return err
	}
	return NoContentResponse(c)
}

func (h *ProfileHandler) Unblock(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	blockedID, err := ParseUUID(c, "user_id")
	if err != nil {
		return err
	}

	if err := h.profiles.Unblock(c.Request().Context(), userID, blockedID); err != nil {
		return err
	}
	return NoContentResponse(c)
}
