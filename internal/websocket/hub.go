package websocket

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Orion Messenger.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Orion Messenger. All rights reserved.

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"orion/internal/models"
	"orion/internal/ports"

	"github.com/gorilla/websocket"
)

type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string
	ChatIDs map[int]bool
}

// Hub routes realtime events between connected clients and the message
// and delivery services. A user may hold several simultaneous
// connections (phone + desktop); presence only flips offline when the
// last one goes away.
type Hub struct {
	Clients    map[string]map[*Client]bool
	ChatRooms  map[int]map[string]bool
	Register   chan *Client
	Unregister chan *Client

	Messages ports.IMessageService
	Delivery ports.IDeliveryService
	Logger   *slog.Logger
	Mutex    sync.RWMutex

	// ConnectionsGauge, when set, tracks the live connection count.
	// prometheus.Gauge satisfies it.
	ConnectionsGauge interface {
		Inc()
		Dec()
	}
}

func NewHub(messages ports.IMessageService, delivery ports.IDeliveryService, logger *slog.Logger) *Hub {
	return &Hub{
		Clients:    make(map[string]map[*Client]bool),
		ChatRooms:  make(map[int]map[string]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Messages:   messages,
		Delivery:   delivery,
		Logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Mutex.Lock()
			if h.Clients[client.UserID] == nil {
				h.Clients[client.UserID] = make(map[*Client]bool)
			}
			h.Clients[client.UserID][client] = true
			if client.ChatIDs == nil {
				client.ChatIDs = make(map[int]bool)
			}
			connections := len(h.Clients[client.UserID])
			h.Mutex.Unlock()

			if h.ConnectionsGauge != nil {
				h.ConnectionsGauge.Inc()
			}
			if connections == 1 {
				h.Delivery.HandleConnect(client.UserID)
			}
			h.Logger.Info("client registered", "userID", client.UserID, "connections", connections)

		case client := <-h.Unregister:
			h.Mutex.Lock()
			remaining := 0
			if conns, ok := h.Clients[client.UserID]; ok && conns[client] {
				delete(conns, client)
				close(client.Send)
				if h.ConnectionsGauge != nil {
					h.ConnectionsGauge.Dec()
				}
				if len(conns) == 0 {
					delete(h.Clients, client.UserID)
				}
				remaining = len(conns)
			}
			if remaining == 0 {
				for chatID := range client.ChatIDs {
					if users, ok := h.ChatRooms[chatID]; ok {
						delete(users, client.UserID)
						if len(users) == 0 {
							delete(h.ChatRooms, chatID)
						}
					}
				}
			}
			h.Mutex.Unlock()

			h.Delivery.HandleDisconnect(client.UserID, remaining)
			h.Logger.Info("client unregistered", "userID", client.UserID, "remaining", remaining)
		}
	}
}

func (h *Hub) joinChat(client *Client, chatID int) {
	h.Mutex.Lock()
	if h.ChatRooms[chatID] == nil {
		h.ChatRooms[chatID] = make(map[string]bool)
	}
	h.ChatRooms[chatID][client.UserID] = true
	client.ChatIDs[chatID] = true
	h.Mutex.Unlock()

	h.Logger.Debug("user joined chat", "userID", client.UserID, "chatID", chatID)
}

// BroadcastToChat delivers the event to every connection of every
// participant currently joined to the chat, the sender's other devices
// included.
func (h *Hub) BroadcastToChat(chatID int, event map[string]interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.Logger.Error("failed to marshal event", "error", err)
		return
	}

	h.Mutex.RLock()
	defer h.Mutex.RUnlock()

	users, ok := h.ChatRooms[chatID]
	if !ok {
		h.Logger.Debug("chat room has no joined users", "chatID", chatID)
		return
	}
	for userID := range users {
		h.sendToUserLocked(userID, data)
	}
}

func (h *Hub) BroadcastToUser(userID string, event map[string]interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.Logger.Error("failed to marshal event", "error", err)
		return
	}

	h.Mutex.RLock()
	defer h.Mutex.RUnlock()
	h.sendToUserLocked(userID, data)
}

func (h *Hub) BroadcastToAll(event map[string]interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.Logger.Error("failed to marshal event", "error", err)
		return
	}

	h.Mutex.RLock()
	defer h.Mutex.RUnlock()
	for userID := range h.Clients {
		h.sendToUserLocked(userID, data)
	}
}

func (h *Hub) sendToUserLocked(userID string, data []byte) {
	for client := range h.Clients[userID] {
		select {
		case client.Send <- data:
		default:
			h.Logger.Warn("client send buffer full, dropping frame", "userID", userID)
		}
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.Logger.Error("websocket error", "userID", c.UserID, "error", err)
			}
			break
		}

		var event models.ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.Hub.Logger.Error("failed to parse client event", "userID", c.UserID, "error", err)
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event models.ClientEvent) {
	ctx := context.Background()

	switch event.Type {
	case models.EventJoinChat:
		c.Hub.joinChat(c, event.ChatID)

	case models.EventSendMessage:
		if _, err := c.Hub.Messages.SendMessage(ctx, c.UserID, event); err != nil {
			c.Hub.Logger.Error("failed to send message",
				"userID", c.UserID, "chatID", event.ChatID, "error", err)
			c.sendError(event.ChatID, err)
		}

	case models.EventMessageDelivered:
		if err := c.Hub.Delivery.MarkDelivered(ctx, event.ChatID, event.MessageID); err != nil {
			c.Hub.Logger.Error("failed to mark delivered",
				"userID", c.UserID, "messageID", event.MessageID, "error", err)
		}

	case models.EventMessageRead:
		if err := c.Hub.Delivery.MarkChatRead(ctx, event.ChatID, c.UserID); err != nil {
			c.Hub.Logger.Error("failed to mark chat read",
				"userID", c.UserID, "chatID", event.ChatID, "error", err)
		}

	default:
		c.Hub.Logger.Warn("unknown event type", "type", event.Type, "userID", c.UserID)
	}
}

func (c *Client) sendError(chatID int, err error) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"chat_id": chatID,
		"error":   err.Error(),
	})
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
