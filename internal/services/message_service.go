package services

import (
	"context"
	"log/slog"
	"orion/internal/models"
	"orion/internal/ports"
	"time"
)

// MessageService persists inbound messages and fans them out to the
// chat's connected participants. Content is opaque to the server: for
// encrypted chats it is the ciphertext envelope produced by the sending
// device.
type MessageService struct {
	messageRepo ports.IMessageRepository
	logger      *slog.Logger
	hub         ports.IBroadcaster
}

func NewMessageService(messageRepo ports.IMessageRepository, logger *slog.Logger) *MessageService {
	return &MessageService{messageRepo: messageRepo, logger: logger}
}

func (s *MessageService) SetHub(hub ports.IBroadcaster) {
	s.hub = hub
}

func (s *MessageService) SendMessage(ctx context.Context, senderID string, event models.ClientEvent) (*models.Message, error) {
	if senderID == "" || event.Content == "" || event.ChatID == 0 {
		return nil, ErrInvalidInput
	}

	msgType := event.MessageType
	if msgType == "" {
		msgType = "text"
	}

	msg := &models.Message{
		ChatID:          event.ChatID,
		SenderID:        senderID,
		Content:         event.Content,
		Type:            msgType,
		MediaURL:        event.MediaURL,
		Status:          models.StatusSent,
		ReplyToID:       event.ReplyToID,
		ForwardedFromID: event.ForwardedFromID,
		CreatedAt:       time.Now().UTC(),
	}

	id, err := s.messageRepo.CreateMessage(ctx, msg)
	if err != nil {
		s.logger.Error("failed to persist message", "chatID", event.ChatID, "sender", senderID, "error", err)
		return nil, err
	}
	msg.ID = id
	messagesSentTotal.Inc()

	if s.hub != nil {
		s.hub.BroadcastToChat(msg.ChatID, map[string]interface{}{
			"type":              models.EventReceiveMessage,
			"id":                msg.ID,
			"chat_id":           msg.ChatID,
			"sender_id":         msg.SenderID,
			"content":           msg.Content,
			"msg_type":          msg.Type,
			"media_url":         msg.MediaURL,
			"status":            msg.Status,
			"reply_to_id":       msg.ReplyToID,
			"forwarded_from_id": msg.ForwardedFromID,
			"created_at":        msg.CreatedAt.Format(time.RFC3339),
		})
	}

	s.logger.Debug("message stored and fanned out", "messageID", msg.ID, "chatID", msg.ChatID)
	return msg, nil
}

func (s *MessageService) GetMessages(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	if chatID == 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.messageRepo.GetMessages(ctx, chatID, limit, offset)
}

func (s *MessageService) DeleteMessage(ctx context.Context, messageID int64, senderID string) error {
	if messageID == 0 || senderID == "" {
		return ErrInvalidInput
	}
	return s.messageRepo.DeleteMessage(ctx, messageID, senderID)
}
