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

// Package tokenstore provides the TTL key-value storage backends used by the
// authorization server. A store holds opaque byte values grouped into named
// collections; callers are responsible for serialization and for hashing any
// sensitive keys before they reach a store.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// Collection names used by the authorization server.
const (
	CollectionClients         = "clients"
	CollectionAuthCodes       = "auth_codes"
	CollectionAccessTokens    = "access_tokens"
	CollectionUsers           = "users"
	CollectionCredentialIndex = "credential_index"
)

// Collections lists every collection a backend must support.
var Collections = []string{
	CollectionClients,
	CollectionAuthCodes,
	CollectionAccessTokens,
	CollectionUsers,
	CollectionCredentialIndex,
}

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the key does not exist in the collection.
	// Expired entries are reported as not found.
	ErrNotFound = errors.New("not found")

	// ErrUnknownCollection indicates a collection name outside Collections.
	ErrUnknownCollection = errors.New("unknown collection")
)

// DefaultCleanupInterval is how often backends purge expired entries.
const DefaultCleanupInterval = 5 * time.Minute

// Store is a TTL key-value store with atomic single-use consumption.
//
// All implementations must be safe for concurrent use. A ttl of zero means
// the entry never expires. Reads of expired entries return ErrNotFound even
// if the backend has not physically removed them yet.
type Store interface {
	// Put stores value under (collection, key), replacing any existing entry.
	Put(ctx context.Context, collection, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under (collection, key).
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Delete removes the entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Consume atomically retrieves and removes the entry. Under concurrent
	// calls for the same key at most one caller receives the value; the
	// rest receive ErrNotFound.
	Consume(ctx context.Context, collection, key string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}

func validCollection(collection string) bool {
	for _, c := range Collections {
		if c == collection {
			return true
		}
	}
	return false
}
