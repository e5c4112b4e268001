package adapters

import (
	"context"
	"time"

	"github.com/go-redis/redis"
)

// Revoked tokens are tracked as a redis blacklist of token hashes. An
// absent key means the token is still live, so entries carry the
// token's remaining lifetime as TTL and expire on their own.
const revokedTokenPrefix = "revoked_token:"

type RedisTokenRepository struct {
	client *redis.Client
}

func NewRedisTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{client: client}
}

func (r *RedisTokenRepository) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	exists, err := r.client.WithContext(ctx).Exists(revokedTokenPrefix + tokenHash).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (r *RedisTokenRepository) Revoke(ctx context.Context, tokenHash string, expiration time.Duration) error {
	return r.client.WithContext(ctx).Set(revokedTokenPrefix+tokenHash, "1", expiration).Err()
}
