package ports

import (
	"context"
	"orion/internal/models"
)

type IMessageService interface {
	SendMessage(ctx context.Context, senderID string, event models.ClientEvent) (*models.Message, error)
}

type IDeliveryService interface {
	MarkDelivered(ctx context.Context, chatID int, messageID int64) error
	MarkChatRead(ctx context.Context, chatID int, readerID string) error
	HandleConnect(userID string)
	HandleDisconnect(userID string, remainingConnections int)
}

// IBroadcaster is the outbound half of the realtime channel, implemented
// by the websocket hub. Services push events through it without knowing
// about connection management.
type IBroadcaster interface {
	BroadcastToChat(chatID int, event map[string]interface{})
	BroadcastToUser(userID string, event map[string]interface{})
	BroadcastToAll(event map[string]interface{})
}
