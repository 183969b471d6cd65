package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the revocation store.
// Entries expire together with the token they revoke.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "panadero:revoked:",
	}
}

// InvalidateToken marks a token as invalidated in Redis.
// An existing entry keeps the longer of its TTL and expiry.
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if expiry <= 0 {
		// Already expired tokens are rejected by signature validation.
		return nil
	}

	key := s.prefix + tokenID

	created, err := s.client.SetNX(ctx, key, "1", expiry).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	if created {
		return nil
	}

	// GT only ever extends the TTL
	if err := s.client.ExpireGT(ctx, key, expiry).Err(); err != nil {
		return fmt.Errorf("failed to extend token invalidation: %w", err)
	}

	return nil
}

// ConsumeToken invalidates a token with SET NX, so only one caller wins
func (s *RedisStore) ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	if expiry < time.Millisecond {
		expiry = time.Millisecond
	}

	created, err := s.client.SetNX(ctx, s.prefix+tokenID, "1", expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return created, nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	// Check if key exists
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}
