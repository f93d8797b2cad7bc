// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces gateway entries so the store can share a Redis
// database with other applications.
const keyPrefix = "findata:oauth"

// RedisStore implements Store on a Redis server. Expiry is delegated to
// Redis TTLs, so no cleanup goroutine is needed, and Consume maps onto
// GETDEL which is atomic server-side.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url
// (redis://[user:pass@]host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(collection, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, collection, key)
}

// Put stores value under (collection, key), replacing any existing entry.
func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte, ttl time.Duration) error {
	if !validCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	// go-redis treats expiration 0 as no expiry, matching Store semantics.
	if err := s.client.Set(ctx, redisKey(collection, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Get returns the value stored under (collection, key).
func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	value, err := s.client.Get(ctx, redisKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

// Delete removes the entry. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if !validCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if err := s.client.Del(ctx, redisKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Consume atomically retrieves and removes the entry using GETDEL.
func (s *RedisStore) Consume(ctx context.Context, collection, key string) ([]byte, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	value, err := s.client.GetDel(ctx, redisKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel failed: %w", err)
	}
	return value, nil
}

// Compile-time interface compliance check
var _ Store = (*RedisStore)(nil)
