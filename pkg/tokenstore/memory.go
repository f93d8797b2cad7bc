// Copyright 2025 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tokenstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"
)

// timedEntry wraps a value with its creation time for TTL tracking.
// A zero expiresAt means the entry never expires.
type timedEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

func (e *timedEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implements Store with in-memory maps.
// This implementation is thread-safe and is the default backend when no
// persistent storage is configured. All entries are lost on restart.
type MemoryStore struct {
	mu sync.RWMutex

	// collections maps collection name -> key -> entry.
	collections map[string]map[string]*timedEntry

	// cleanupInterval is how often the background cleanup runs.
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop.
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped.
	cleanupDone chan struct{}
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates a new MemoryStore with initialized collections and
// starts the background cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		collections:     make(map[string]map[string]*timedEntry, len(Collections)),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, c := range Collections {
		s.collections[c] = make(map[string]*timedEntry)
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes all expired entries. Uses collect-then-delete:
// expired keys are collected under the read lock, then removed under the
// write lock. This minimizes write lock hold time.
func (s *MemoryStore) cleanupExpired() {
	now := time.Now()

	type expiredKey struct {
		collection string
		key        string
	}

	s.mu.RLock()
	var expired []expiredKey
	for name, entries := range s.collections {
		for k, v := range entries {
			if v.expired(now) {
				expired = append(expired, expiredKey{collection: name, key: k})
			}
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range expired {
		// Re-check under the write lock: the entry may have been replaced
		// with a fresh value since collection.
		if entry, ok := s.collections[e.collection][e.key]; ok && entry.expired(time.Now()) {
			delete(s.collections[e.collection], e.key)
		}
	}
}

// Put stores value under (collection, key), replacing any existing entry.
// A defensive copy of value is made to prevent aliasing issues.
func (s *MemoryStore) Put(_ context.Context, collection, key string, value []byte, ttl time.Duration) error {
	if !validCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	s.collections[collection][key] = &timedEntry{
		value:     bytes.Clone(value),
		createdAt: now,
		expiresAt: expiresAt,
	}
	return nil
}

// Get returns the value stored under (collection, key).
// Expired entries are reported as ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, collection, key string) ([]byte, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.collections[collection][key]
	if !ok || entry.expired(time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, collection)
	}
	return bytes.Clone(entry.value), nil
}

// Delete removes the entry. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, collection, key string) error {
	if !validCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], key)
	return nil
}

// Consume atomically retrieves and removes the entry. The write lock is held
// across the lookup and delete, so concurrent consumers of the same key see
// at most one winner.
func (s *MemoryStore) Consume(_ context.Context, collection, key string) ([]byte, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, collection)
	}
	delete(s.collections[collection], key)

	if entry.expired(time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, collection)
	}
	return bytes.Clone(entry.value), nil
}

// Len reports the number of live entries in a collection.
// This is useful for testing and monitoring.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, entry := range s.collections[collection] {
		if !entry.expired(now) {
			n++
		}
	}
	return n
}

// Compile-time interface compliance check
var _ Store = (*MemoryStore)(nil)
