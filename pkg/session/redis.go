package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/dideher/secondments/pkg/observability"
)

const keyPrefix = "session:"

// RedisStore keeps sessions in Redis with a server-side TTL. Redis expiry is
// the source of truth for session lifetime; the ExpiresAt field mirrors it
// for callers that want to display or reason about it.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewRedisStore creates a session store over the given Redis client
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *observability.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Create mints a new session with a random key and persists it
func (s *RedisStore) Create(ctx context.Context, userID int64, username string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		Key:       uuid.New().String(),
		UserID:    userID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get fetches a session by key, returning nil when the key is unknown
func (s *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Expired() {
		return nil, nil
	}
	return &sess, nil
}

// Save writes a session back, keeping the remaining TTL aligned with the
// session's expiry
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, keyPrefix+sess.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Exists reports whether a session key is live
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return n > 0, nil
}
