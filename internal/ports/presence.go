package ports

import (
	"orion/internal/models"
	"time"
)

type IPresenceRepository interface {
	SetOnline(userID string) error
	SetOffline(userID string, lastSeen time.Time) error
	Get(userID string) (*models.Presence, error)
}
