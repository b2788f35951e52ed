// Package session persists per-session editor preferences (viewport,
// sidebar visibility) in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"composer/internal/domain"
)

// ErrNotFound is returned when a session has no stored preferences or they
// expired.
var ErrNotFound = errors.New("session preferences not found")

const defaultTTL = 30 * 24 * time.Hour

// RedisStore implements domain.PreferenceStore using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: "composer:prefs:", ttl: ttl}
}

func (s *RedisStore) key(session string) string {
	return s.prefix + session
}

// LoadPreferences returns the stored preferences of a session. Reading
// refreshes the expiry.
func (s *RedisStore) LoadPreferences(ctx context.Context, session string) (*domain.Preferences, error) {
	raw, err := s.client.GetEx(ctx, s.key(session), s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", session, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	var prefs domain.Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return &prefs, nil
}

// SavePreferences stores prefs with the store TTL.
func (s *RedisStore) SavePreferences(ctx context.Context, session string, prefs domain.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// DeletePreferences forgets a session.
func (s *RedisStore) DeletePreferences(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, s.key(session)).Err(); err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
