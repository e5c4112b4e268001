// Package tests holds the shared testify mocks for the service-layer
// tests.
package tests

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"orion/internal/models"
)

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockKeyBundleRepository struct {
	mock.Mock
}

func (m *MockKeyBundleRepository) PutIdentity(ctx context.Context, identity *models.Identity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockKeyBundleRepository) PutPreKeys(ctx context.Context, userID string, signed models.SignedPreKey, oneTime []models.OneTimePreKey) error {
	args := m.Called(ctx, userID, signed, oneTime)
	return args.Error(0)
}

func (m *MockKeyBundleRepository) GetBundle(ctx context.Context, userID string) (*models.KeyBundle, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyBundle), args.Error(1)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) CreateMessage(ctx context.Context, msg *models.Message) (int64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) AdvanceStatus(ctx context.Context, chatID int, messageID int64, status models.MessageStatus) (bool, error) {
	args := m.Called(ctx, chatID, messageID, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepository) MarkChatRead(ctx context.Context, chatID int, readerID string) ([]int64, error) {
	args := m.Called(ctx, chatID, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockMessageRepository) GetMessages(ctx context.Context, chatID int, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessageRepository) DeleteMessage(ctx context.Context, messageID int64, senderID string) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

type MockPresenceRepository struct {
	mock.Mock
}

func (m *MockPresenceRepository) SetOnline(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockPresenceRepository) SetOffline(userID string, lastSeen time.Time) error {
	args := m.Called(userID, lastSeen)
	return args.Error(0)
}

func (m *MockPresenceRepository) Get(userID string) (*models.Presence, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Presence), args.Error(1)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) BroadcastToChat(chatID int, event map[string]interface{}) {
	m.Called(chatID, event)
}

func (m *MockBroadcaster) BroadcastToUser(userID string, event map[string]interface{}) {
	m.Called(userID, event)
}

func (m *MockBroadcaster) BroadcastToAll(event map[string]interface{}) {
	m.Called(event)
}

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	args := m.Called(ctx, tokenHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenRepository) Revoke(ctx context.Context, tokenHash string, expiration time.Duration) error {
	args := m.Called(ctx, tokenHash, expiration)
	return args.Error(0)
}
