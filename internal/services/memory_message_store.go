package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"orion/internal/models"
	"orion/internal/repositories"
)

// MemoryMessageStore is an in-memory IMessageRepository for the
// development profile and tests. Semantics mirror the SQL repository:
// status moves only forward, MarkChatRead collapses missed delivered
// steps, deletes are sender-only.
type MemoryMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*models.Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{nextID: 1, messages: make(map[int64]*models.Message)}
}

func (s *MemoryMessageStore) CreateMessage(ctx context.Context, msg *models.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	stored.ID = s.nextID
	stored.Status = models.StatusSent
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.messages[stored.ID] = &stored
	s.nextID++
	return stored.ID, nil
}

func (s *MemoryMessageStore) AdvanceStatus(ctx context.Context, chatID int, messageID int64, status models.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.ChatID != chatID {
		return false, nil
	}
	if !msg.Status.AdvancesTo(status) {
		return false, nil
	}
	msg.Status = status
	return true, nil
}

func (s *MemoryMessageStore) MarkChatRead(ctx context.Context, chatID int, readerID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []int64
	for id, msg := range s.messages {
		if msg.ChatID != chatID || msg.SenderID == readerID || msg.Status == models.StatusRead {
			continue
		}
		msg.Status = models.StatusRead
		changed = append(changed, id)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, nil
}

func (s *MemoryMessageStore) GetMessages(ctx context.Context, chatID int, limit, offset int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Message
	for _, msg := range s.messages {
		if msg.ChatID == chatID {
			all = append(all, *msg)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryMessageStore) DeleteMessage(ctx context.Context, messageID int64, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.SenderID != senderID {
		return repositories.ErrNotMessageSender
	}
	delete(s.messages, messageID)
	return nil
}

// Status reports a message's current status, for tests.
func (s *MemoryMessageStore) Status(messageID int64) (models.MessageStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return "", false
	}
	return msg.Status, true
}
