package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"orion/internal/repositories"
	"orion/internal/services"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type MessagesHandler struct {
	messages *services.MessageService
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewMessagesHandler(messages *services.MessageService, logger *slog.Logger, tracer trace.Tracer) *MessagesHandler {
	return &MessagesHandler{messages: messages, logger: logger, tracer: tracer}
}

// GetChatMessages serves history fetches. An offline recipient catching
// up reads the current status from here; any delivered step the server
// never saw is collapsed when the client later acknowledges read.
func (h *MessagesHandler) GetChatMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chat ID"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.messages.GetMessages(c.Request.Context(), chatID, limit, offset)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to load messages", "requestID", services.GetRequestID(c), "chatID", chatID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

func (h *MessagesHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	userID := c.GetString("user_id")
	if err := h.messages.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotMessageSender):
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender may delete a message"})
		case errors.Is(err, services.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to delete message", "requestID", services.GetRequestID(c), "messageID", messageID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Delete failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
