package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/conversation"
	"github.com/Ramsey-B/clover/pkg/models"
)

const defaultPageSize = 50

type ThreadHandler struct {
	conversations *conversation.Service
}

func NewThreadHandler(conversations *conversation.Service) *ThreadHandler {
	return &ThreadHandler{conversations: conversations}
}

func (h *ThreadHandler) RegisterRoutes(g *echo.Group) {
	threads := g.Group("/threads")
	threads.GET("", h.List)
	threads.GET("/with/:user_id", h.Open)
	threads.POST("/with/:user_id/messages", h.Post)
	threads.POST("/:id/read", h.MarkRead)
	threads.DELETE("/:id", h.Delete)

	g.GET("/messages/unread-count", h.UnreadCount)
}

type PostMessageRequest struct {
	Text string `json:"text" validate:"max=5000"`
}

type ThreadResponse struct {
	Thread   *models.Thread   `json:"thread"`
	Messages []models.Message `json:"messages"`
}

// List returns the caller's inbox, most recently active first
func (h *ThreadHandler) List(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	limit, err := ParseLimit(c, defaultPageSize)
	if err != nil {
		return err
	}

	threads, err := h.conversations.ListThreads(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, threads)
}

// Open returns the thread with another account, creating it on first
// contact. Viewing the thread marks what the caller received as read.
func (h *ThreadHandler) Open(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	otherID, err := ParseUUID(c, "user_id")
	if err != nil {
		return err
	}
	limit, err := ParseLimit(c, maxListLimit)
	if err != nil {
		return err
	}

	thread, err := h.conversations.GetOrCreateThread(ctx, userID, otherID)
	if err != nil {
		return err
	}
	if _, err := h.conversations.MarkRead(ctx, thread.ID, userID); err != nil {
		return err
	}
	messages, err := h.conversations.ListMessages(ctx, thread.ID, userID, limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, ThreadResponse{Thread: thread, Messages: messages})
}

func (h *ThreadHandler) Post(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	recipientID, err := ParseUUID(c, "user_id")
	if err != nil {
		return err
	}
	req, err := BindRequest[PostMessageRequest](c)
	if err != nil {
		return err
	}

	message, err := h.conversations.PostTo(c.Request().Context(), userID, recipientID, req.Text)
	if err != nil {
		return err
	}
	return CreatedResponse(c, message)
}

func (h *ThreadHandler) MarkRead(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	threadID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	marked, err := h.conversations.MarkRead(c.Request().Context(), threadID, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, map[string]int64{"marked": marked})
}

// Delete hides the thread from the caller's view only
func (h *ThreadHandler) Delete(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}
	threadID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.conversations.DeleteConversation(c.Request().Context(), threadID, userID); err != nil {
		return err
	}
	return NoContentResponse(c)
}

func (h *ThreadHandler) UnreadCount(c echo.Context) error {
	userID, err := CurrentUser(c)
	if err != nil {
		return err
	}

	count, err := h.conversations.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, map[string]int{"unread_messages": count})
}
