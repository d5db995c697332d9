package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
)

type MessageHandler struct {
	messageService  *services.MessageService
	realtimeService *services.RealtimeService
}

func NewMessageHandler(messageService *services.MessageService, realtimeService *services.RealtimeService) *MessageHandler {
	return &MessageHandler{
		messageService:  messageService,
		realtimeService: realtimeService,
	}
}

// SendMessage stores a message and pushes it to connected parties, exactly
// like send_message over the websocket
func (h *MessageHandler) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dtos.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.realtimeService.SendMessage(c.Request.Context(), *user, req, services.TransportREST)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// GetSessionMessages returns chat history, oldest first within the page
func (h *MessageHandler) GetSessionMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	page, limit := utils.ParsePage(c.Query("page"), c.Query("limit"))
	messages, pagination, err := h.messageService.ListBySession(c.Request.Context(), sessionID, user.UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.MessageListResponse{
		Messages:   messages,
		Pagination: pagination,
	})
}

func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	updated, err := h.messageService.MarkRead(c.Request.Context(), sessionID, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.MarkReadResponse{SessionID: sessionID, Updated: updated})
}

func (h *MessageHandler) GetUnreadCount(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	count, err := h.messageService.UnreadCount(c.Request.Context(), sessionID, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.UnreadCountResponse{SessionID: sessionID, Count: count})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.messageService.Remove(c.Request.Context(), messageID, user.UserID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
