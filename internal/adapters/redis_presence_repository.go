package adapters

import (
	"orion/internal/models"
	"strconv"
	"time"

	"github.com/go-redis/redis"
)

// RedisPresenceRepository keeps per-user presence in redis so every
// server process observes the same online/offline state. Only last_seen
// survives a restart in any meaningful way; the online flag is volatile
// by design.
type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

func (r *RedisPresenceRepository) SetOnline(userID string) error {
	return r.client.HMSet("presence:"+userID, map[string]interface{}{
		"status": string(models.PresenceOnline),
	}).Err()
}

func (r *RedisPresenceRepository) SetOffline(userID string, lastSeen time.Time) error {
	return r.client.HMSet("presence:"+userID, map[string]interface{}{
		"status":    string(models.PresenceOffline),
		"last_seen": strconv.FormatInt(lastSeen.Unix(), 10),
	}).Err()
}

func (r *RedisPresenceRepository) Get(userID string) (*models.Presence, error) {
	fields, err := r.client.HGetAll("presence:" + userID).Result()
	if err != nil {
		return nil, err
	}

	presence := models.Presence{UserID: userID, Status: models.PresenceOffline}
	if status, ok := fields["status"]; ok {
		presence.Status = models.PresenceStatus(status)
	}
	if raw, ok := fields["last_seen"]; ok {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			presence.LastSeen = time.Unix(unix, 0)
		}
	}
	return &presence, nil
}
