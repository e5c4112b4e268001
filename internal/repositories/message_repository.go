package repositories

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log/slog"
	"orion/internal/models"
)

//go:embed migrations/003_create_messages_table_up.sql
var createMessagesTableQuery string

var ErrNotMessageSender = errors.New("only the sender may delete a message")

type MessageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMessageRepository(db *sql.DB, logger *slog.Logger) (*MessageRepository, error) {
	repo := MessageRepository{db: db, logger: logger}
	if _, err := repo.db.Exec(createMessagesTableQuery); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, content, type, media_url, status, reply_to_id, forwarded_from_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING id`,
		msg.ChatID, msg.SenderID, msg.Content, msg.Type, msg.MediaURL,
		models.StatusSent, msg.ReplyToID, msg.ForwardedFromID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AdvanceStatus only applies forward transitions. A delayed "delivered"
// arriving after "read" matches zero rows and is reported as not
// applied. The chat id guard keeps a client from acknowledging a
// message into a chat it does not belong to.
func (r *MessageRepository) AdvanceStatus(ctx context.Context, chatID int, messageID int64, status models.MessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $3
		WHERE id = $1 AND chat_id = $2
		  AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
		    < CASE $3 WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END`,
		messageID, chatID, status)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *MessageRepository) MarkChatRead(ctx context.Context, chatID int, readerID string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE messages SET status = 'read'
		WHERE chat_id = $1 AND sender_id <> $2 AND status <> 'read'
		RETURNING id`,
		chatID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MessageRepository) GetMessages(ctx context.Context, chatID int, limit, offset int) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, type, COALESCE(media_url, ''), status, reply_to_id, forwarded_from_id, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err = rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Type,
			&msg.MediaURL, &msg.Status, &msg.ReplyToID, &msg.ForwardedFromID, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) DeleteMessage(ctx context.Context, messageID int64, senderID string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM messages WHERE id = $1 AND sender_id = $2", messageID, senderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotMessageSender
	}
	return nil
}
