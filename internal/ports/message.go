package ports

import (
	"context"
	"orion/internal/models"
)

type IMessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) (int64, error)

	// AdvanceStatus applies the status only if the message belongs to
	// chatID and the status moves it forward in the sent -> delivered
	// -> read order. It returns true when the row actually changed,
	// false when the update was stale, redundant, or addressed to the
	// wrong chat.
	AdvanceStatus(ctx context.Context, chatID int, messageID int64, status models.MessageStatus) (bool, error)

	// MarkChatRead marks every message in the chat not sent by readerID
	// as read, regardless of whether a delivered acknowledgement was
	// ever observed, and returns the ids that changed.
	MarkChatRead(ctx context.Context, chatID int, readerID string) ([]int64, error)

	GetMessages(ctx context.Context, chatID int, limit, offset int) ([]models.Message, error)

	// DeleteMessage removes a message; only its sender may delete it.
	DeleteMessage(ctx context.Context, messageID int64, senderID string) error
}
