package handlers

import (
	"log/slog"
	"net/http"
	"orion/internal/services"
	internalWebsocket "orion/internal/websocket"

	libWebsocket "github.com/gorilla/websocket"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type WebSocketHandler struct {
	Hub    *internalWebsocket.Hub
	Tokens *services.TokenService
	Logger *slog.Logger
	Tracer trace.Tracer
}

func NewWebSocketHandler(hub *internalWebsocket.Hub, tokens *services.TokenService, logger *slog.Logger, tracer trace.Tracer) *WebSocketHandler {
	return &WebSocketHandler{Hub: hub, Tokens: tokens, Logger: logger, Tracer: tracer}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		cookie, err := c.Request.Cookie("token")
		if err == nil {
			token = cookie.Value
		}
	}

	userID, err := h.Tokens.ValidateToken(c.Request.Context(), token)
	if err != nil {
		h.Logger.Warn("unauthorized websocket connection attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	upgrader := libWebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &internalWebsocket.Client{
		Hub:     h.Hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  userID,
		ChatIDs: make(map[int]bool),
	}

	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	h.Logger.Info("websocket connection established", "userID", userID)
}
