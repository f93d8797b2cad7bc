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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// diskEntry is the on-disk representation of a stored value.
// Value is base64-encoded by encoding/json. A zero ExpiresAt means the entry
// never expires.
type diskEntry struct {
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func (e *diskEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// DiskStore implements Store with one JSON file per collection under a
// directory. Files are guarded by an advisory file lock so multiple gateway
// processes can share a storage directory, plus an in-process mutex because
// flock is per-process, not per-goroutine.
//
// Every operation reads, mutates, and atomically rewrites the whole
// collection file. This is adequate for the small working sets an
// authorization server keeps; larger deployments should use the Redis
// backend instead.
type DiskStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// NewDiskStore creates the storage directory (0700) if needed and returns a
// store over it.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	locks := make(map[string]*flock.Flock, len(Collections))
	for _, c := range Collections {
		locks[c] = flock.New(filepath.Join(dir, c+".lock"))
	}

	return &DiskStore{dir: dir, locks: locks}, nil
}

// Close is a no-op; file locks are released at the end of each operation.
func (*DiskStore) Close() error {
	return nil
}

func (s *DiskStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// withCollection runs fn with the collection's entries loaded, holding both
// the in-process mutex and the advisory file lock. When fn reports the map
// dirty, the file is rewritten via temp-file rename.
func (s *DiskStore) withCollection(
	ctx context.Context,
	collection string,
	fn func(entries map[string]*diskEntry) (dirty bool, err error),
) error {
	if !validCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fileLock := s.locks[collection]
	locked, err := fileLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", collection, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock for %s", collection)
	}
	defer func() { _ = fileLock.Unlock() }()

	entries, err := s.load(collection)
	if err != nil {
		return err
	}

	dirty, err := fn(entries)
	if dirty {
		if werr := s.save(collection, entries); werr != nil {
			if err != nil {
				return err
			}
			return werr
		}
	}
	return err
}

func (s *DiskStore) load(collection string) (map[string]*diskEntry, error) {
	data, err := os.ReadFile(s.collectionPath(collection))
	if os.IsNotExist(err) {
		return make(map[string]*diskEntry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	entries := make(map[string]*diskEntry)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse collection %s: %w", collection, err)
		}
	}
	return entries, nil
}

func (s *DiskStore) save(collection string, entries map[string]*diskEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collection, err)
	}

	path := s.collectionPath(collection)
	tmp, err := os.CreateTemp(s.dir, collection+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write collection %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace collection %s: %w", collection, err)
	}
	return nil
}

// Put stores value under (collection, key), replacing any existing entry.
func (s *DiskStore) Put(ctx context.Context, collection, key string, value []byte, ttl time.Duration) error {
	return s.withCollection(ctx, collection, func(entries map[string]*diskEntry) (bool, error) {
		now := time.Now()
		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = now.Add(ttl)
		}
		entries[key] = &diskEntry{
			Value:     bytes.Clone(value),
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}
		return true, nil
	})
}

// Get returns the value stored under (collection, key).
// Expired entries are purged from the file and reported as ErrNotFound.
func (s *DiskStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var value []byte
	err := s.withCollection(ctx, collection, func(entries map[string]*diskEntry) (bool, error) {
		entry, ok := entries[key]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, collection)
		}
		if entry.expired(time.Now()) {
			delete(entries, key)
			return true, fmt.Errorf("%w: %s", ErrNotFound, collection)
		}
		value = bytes.Clone(entry.Value)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes the entry. Deleting a missing key is not an error.
func (s *DiskStore) Delete(ctx context.Context, collection, key string) error {
	return s.withCollection(ctx, collection, func(entries map[string]*diskEntry) (bool, error) {
		if _, ok := entries[key]; !ok {
			return false, nil
		}
		delete(entries, key)
		return true, nil
	})
}

// Consume atomically retrieves and removes the entry. The file lock is held
// across the read-delete-rewrite, so concurrent consumers (including other
// processes) see at most one winner.
func (s *DiskStore) Consume(ctx context.Context, collection, key string) ([]byte, error) {
	var value []byte
	err := s.withCollection(ctx, collection, func(entries map[string]*diskEntry) (bool, error) {
		entry, ok := entries[key]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, collection)
		}
		delete(entries, key)
		if entry.expired(time.Now()) {
			return true, fmt.Errorf("%w: %s", ErrNotFound, collection)
		}
		value = bytes.Clone(entry.Value)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Compile-time interface compliance check
var _ Store = (*DiskStore)(nil)
