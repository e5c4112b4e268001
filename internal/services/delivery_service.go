package services

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Orion Messenger.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Orion Messenger. All rights reserved.

import (
	"context"
	"log/slog"
	"orion/internal/models"
	"orion/internal/ports"
	"time"
)

// DeliveryService advances per-message delivery status and tracks user
// presence. Status transitions are monotonic: the repository only
// applies an update that moves a message forward, so a delayed
// "delivered" arriving after "read" is dropped rather than regressing
// the state.
//
// Failed status persistence is logged and dropped by design; delivery
// status is best-effort metadata, not message content.
type DeliveryService struct {
	messageRepo  ports.IMessageRepository
	presenceRepo ports.IPresenceRepository
	logger       *slog.Logger
	hub          ports.IBroadcaster
}

func NewDeliveryService(messageRepo ports.IMessageRepository, presenceRepo ports.IPresenceRepository, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{messageRepo: messageRepo, presenceRepo: presenceRepo, logger: logger}
}

func (s *DeliveryService) SetHub(hub ports.IBroadcaster) {
	s.hub = hub
}

// MarkDelivered records a recipient's receipt acknowledgement. The
// transition is broadcast to every participant's connections, not just
// the sender, so multi-device clients stay consistent.
func (s *DeliveryService) MarkDelivered(ctx context.Context, chatID int, messageID int64) error {
	if chatID == 0 || messageID == 0 {
		return ErrInvalidInput
	}

	// The repository checks the message against the client-supplied
	// chat id, so a mismatch never reaches the broadcast below.
	advanced, err := s.messageRepo.AdvanceStatus(ctx, chatID, messageID, models.StatusDelivered)
	if err != nil {
		s.logger.Error("failed to persist delivered status", "messageID", messageID, "error", err)
		return nil
	}
	if !advanced {
		return nil
	}
	statusTransitionsTotal.WithLabelValues(string(models.StatusDelivered)).Inc()

	if s.hub != nil {
		s.hub.BroadcastToChat(chatID, map[string]interface{}{
			"type":       models.EventStatusUpdate,
			"message_id": messageID,
			"status":     models.StatusDelivered,
		})
	}
	return nil
}

// MarkChatRead marks every message in the chat not sent by the reader
// as read. Messages that never saw a delivered acknowledgement (offline
// recipient catching up via history) jump straight from sent to read.
func (s *DeliveryService) MarkChatRead(ctx context.Context, chatID int, readerID string) error {
	if chatID == 0 || readerID == "" {
		return ErrInvalidInput
	}

	ids, err := s.messageRepo.MarkChatRead(ctx, chatID, readerID)
	if err != nil {
		s.logger.Error("failed to persist read status", "chatID", chatID, "reader", readerID, "error", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	statusTransitionsTotal.WithLabelValues(string(models.StatusRead)).Add(float64(len(ids)))

	if s.hub != nil {
		s.hub.BroadcastToChat(chatID, map[string]interface{}{
			"type":      models.EventChatRead,
			"chat_id":   chatID,
			"reader_id": readerID,
		})
	}

	s.logger.Debug("chat marked read", "chatID", chatID, "reader", readerID, "count", len(ids))
	return nil
}

func (s *DeliveryService) HandleConnect(userID string) {
	if err := s.presenceRepo.SetOnline(userID); err != nil {
		s.logger.Error("failed to store online presence", "userID", userID, "error", err)
	}
	s.broadcastPresence(userID, models.PresenceOnline, time.Time{})
}

// HandleDisconnect goes offline only when the user's last remaining
// connection closed; a phone disconnecting while the desktop stays
// online must not flip the user offline.
func (s *DeliveryService) HandleDisconnect(userID string, remainingConnections int) {
	if remainingConnections > 0 {
		return
	}

	lastSeen := time.Now().UTC()
	if err := s.presenceRepo.SetOffline(userID, lastSeen); err != nil {
		s.logger.Error("failed to store offline presence", "userID", userID, "error", err)
	}
	s.broadcastPresence(userID, models.PresenceOffline, lastSeen)
}

func (s *DeliveryService) GetPresence(userID string) (*models.Presence, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.presenceRepo.Get(userID)
}

func (s *DeliveryService) broadcastPresence(userID string, status models.PresenceStatus, lastSeen time.Time) {
	if s.hub == nil {
		return
	}
	event := map[string]interface{}{
		"type":    models.EventUserStatus,
		"user_id": userID,
		"status":  status,
	}
	if !lastSeen.IsZero() {
		event["last_seen"] = lastSeen.Format(time.RFC3339)
	}
	s.hub.BroadcastToAll(event)
}
