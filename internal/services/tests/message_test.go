package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"orion/app/tests"
	"orion/internal/models"
	"orion/internal/repositories"
	"orion/internal/services"
)

func TestMessageService_SendMessage(t *testing.T) {
	logger := tests.DiscardLogger()
	ctx := context.Background()

	ts := []struct {
		name          string
		senderID      string
		event         models.ClientEvent
		setupMocks    func(repo *tests.MockMessageRepository, hub *tests.MockBroadcaster)
		expectedID    int64
		expectedError error
	}{
		{
			name:     "Persist then fan out",
			senderID: "alice",
			event:    models.ClientEvent{ChatID: 7, Content: "ciphertext envelope"},
			setupMocks: func(repo *tests.MockMessageRepository, hub *tests.MockBroadcaster) {
				repo.On("CreateMessage", ctx, mock.MatchedBy(func(msg *models.Message) bool {
					return msg.ChatID == 7 && msg.SenderID == "alice" &&
						msg.Content == "ciphertext envelope" &&
						msg.Type == "text" && msg.Status == models.StatusSent
				})).Return(int64(42), nil)
				hub.On("BroadcastToChat", 7, mock.MatchedBy(func(event map[string]interface{}) bool {
					return event["type"] == models.EventReceiveMessage &&
						event["id"] == int64(42) &&
						event["sender_id"] == "alice"
				})).Return()
			},
			expectedID:    42,
			expectedError: nil,
		},
		{
			name:          "Empty content",
			senderID:      "alice",
			event:         models.ClientEvent{ChatID: 7},
			setupMocks:    func(repo *tests.MockMessageRepository, hub *tests.MockBroadcaster) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name:          "Missing chat",
			senderID:      "alice",
			event:         models.ClientEvent{Content: "hello"},
			setupMocks:    func(repo *tests.MockMessageRepository, hub *tests.MockBroadcaster) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name:     "Repository failure, nothing broadcast",
			senderID: "alice",
			event:    models.ClientEvent{ChatID: 7, Content: "hello"},
			setupMocks: func(repo *tests.MockMessageRepository, hub *tests.MockBroadcaster) {
				repo.On("CreateMessage", ctx, mock.Anything).Return(int64(0), errors.New("db error"))
			},
			expectedError: errors.New("db error"),
		},
	}

	for _, tt := range ts {
		t.Run(tt.name, func(t *testing.T) {
			repo := &tests.MockMessageRepository{}
			hub := &tests.MockBroadcaster{}
			tt.setupMocks(repo, hub)

			service := services.NewMessageService(repo, logger)
			service.SetHub(hub)

			msg, err := service.SendMessage(ctx, tt.senderID, tt.event)

			assert.Equal(t, tt.expectedError, err)
			if tt.expectedError == nil {
				assert.Equal(t, tt.expectedID, msg.ID)
			}
			repo.AssertExpectations(t)
			hub.AssertExpectations(t)
		})
	}
}

func TestMessageService_GetMessages(t *testing.T) {
	logger := tests.DiscardLogger()
	ctx := context.Background()

	t.Run("Limit defaults when out of range", func(t *testing.T) {
		repo := &tests.MockMessageRepository{}
		repo.On("GetMessages", ctx, 7, 50, 0).Return([]models.Message{}, nil)

		service := services.NewMessageService(repo, logger)
		_, err := service.GetMessages(ctx, 7, 0, 0)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("Oversized limit clamped", func(t *testing.T) {
		repo := &tests.MockMessageRepository{}
		repo.On("GetMessages", ctx, 7, 50, 10).Return([]models.Message{}, nil)

		service := services.NewMessageService(repo, logger)
		_, err := service.GetMessages(ctx, 7, 5000, 10)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("Missing chat id", func(t *testing.T) {
		repo := &tests.MockMessageRepository{}
		service := services.NewMessageService(repo, logger)

		_, err := service.GetMessages(ctx, 0, 50, 0)
		assert.Equal(t, services.ErrInvalidInput, err)
	})
}

func TestMessageService_DeleteMessage(t *testing.T) {
	logger := tests.DiscardLogger()
	ctx := context.Background()

	t.Run("Sender deletes own message", func(t *testing.T) {
		repo := &tests.MockMessageRepository{}
		repo.On("DeleteMessage", ctx, int64(42), "alice").Return(nil)

		service := services.NewMessageService(repo, logger)
		assert.NoError(t, service.DeleteMessage(ctx, 42, "alice"))
		repo.AssertExpectations(t)
	})

	t.Run("Non-sender is rejected", func(t *testing.T) {
		repo := &tests.MockMessageRepository{}
		repo.On("DeleteMessage", ctx, int64(42), "mallory").Return(repositories.ErrNotMessageSender)

		service := services.NewMessageService(repo, logger)
		err := service.DeleteMessage(ctx, 42, "mallory")
		assert.ErrorIs(t, err, repositories.ErrNotMessageSender)
	})

	t.Run("Zero id", func(t *testing.T) {
		repo := &tests.MockMessageRepository{}
		service := services.NewMessageService(repo, logger)
		assert.Equal(t, services.ErrInvalidInput, service.DeleteMessage(ctx, 0, "alice"))
	})
}
