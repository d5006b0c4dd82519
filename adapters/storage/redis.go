package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// DefaultKeyPrefix namespaces session keys in a shared Redis instance
const DefaultKeyPrefix = "tiffauth:"

// RedisStorage is a Redis implementation of the Storage interface
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage creates a Redis storage over an existing client
func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStorage{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStorageFromURL connects to Redis and verifies the connection
func NewRedisStorageFromURL(ctx context.Context, redisURL, prefix string) (*RedisStorage, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorage(client, prefix), nil
}

// Get retrieves a value by key
func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrNotFound
		}
		return "", fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Set stores a single key
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// SetMany stores all entries in one MULTI/EXEC transaction so readers never
// observe a partially written batch
func (s *RedisStorage) SetMany(ctx context.Context, values map[string]string) error {
	pipe := s.client.TxPipeline()
	for k, v := range values {
		pipe.Set(ctx, s.prefix+k, v, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

// Delete removes the given keys in a single DEL command
func (s *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}

	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client so it can be shared with the
// event stream publisher
func (s *RedisStorage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
