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

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/findata-mcp/pkg/logger"
	"github.com/stacklok/findata-mcp/pkg/tokenstore"
)

// ErrNotFound is returned when a record does not exist or has expired.
var ErrNotFound = tokenstore.ErrNotFound

// Storage is the typed record layer over a tokenstore backend.
type Storage struct {
	store tokenstore.Store
}

// New wraps a tokenstore backend.
func New(store tokenstore.Store) *Storage {
	return &Storage{store: store}
}

// hashKey computes the SHA-256 hex digest used to key access tokens and
// upstream credentials. Raw tokens and credentials must never be store keys.
func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (s *Storage) putJSON(ctx context.Context, collection, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", collection, err)
	}
	return s.store.Put(ctx, collection, key, data, ttl)
}

func getJSON[T any](ctx context.Context, s *Storage, collection, key string) (*T, error) {
	data, err := s.store.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", collection, err)
	}
	return &record, nil
}

// PutClient stores a registered client. Clients do not expire.
func (s *Storage) PutClient(ctx context.Context, client *Client) error {
	if client.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if client.IsPublic() && client.ClientSecret != "" {
		return fmt.Errorf("public client cannot have a secret")
	}
	return s.putJSON(ctx, tokenstore.CollectionClients, client.ClientID, client, 0)
}

// GetClient retrieves a client by ID. Returns ErrNotFound if unknown.
func (s *Storage) GetClient(ctx context.Context, clientID string) (*Client, error) {
	return getJSON[Client](ctx, s, tokenstore.CollectionClients, clientID)
}

// PutAuthCode stores an authorization code with a TTL.
func (s *Storage) PutAuthCode(ctx context.Context, code string, record *AuthCode, ttl time.Duration) error {
	if code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}
	return s.putJSON(ctx, tokenstore.CollectionAuthCodes, code, record, ttl)
}

// ConsumeAuthCode atomically retrieves and deletes an authorization code.
// Under concurrent exchange attempts at most one caller gets the record;
// the rest get ErrNotFound. Codes past their recorded expiry are rejected
// even if the backend has not purged them yet.
func (s *Storage) ConsumeAuthCode(ctx context.Context, code string) (*AuthCode, error) {
	data, err := s.store.Consume(ctx, tokenstore.CollectionAuthCodes, code)
	if err != nil {
		return nil, err
	}
	var record AuthCode
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode auth code record: %w", err)
	}
	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		logger.Debugw("authorization code expired", "client_id", record.ClientID)
		return nil, fmt.Errorf("%w: authorization code expired", ErrNotFound)
	}
	return &record, nil
}

// PutAccessToken stores the record for a raw token under SHA-256(token).
func (s *Storage) PutAccessToken(ctx context.Context, rawToken string, record *AccessToken, ttl time.Duration) error {
	if rawToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	return s.putJSON(ctx, tokenstore.CollectionAccessTokens, hashKey(rawToken), record, ttl)
}

// GetAccessToken retrieves the record for a raw token. Expired records are
// reported as ErrNotFound; a token with a valid signature but no live store
// entry is treated as revoked.
func (s *Storage) GetAccessToken(ctx context.Context, rawToken string) (*AccessToken, error) {
	record, err := getJSON[AccessToken](ctx, s, tokenstore.CollectionAccessTokens, hashKey(rawToken))
	if err != nil {
		return nil, err
	}
	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		return nil, fmt.Errorf("%w: access token expired", ErrNotFound)
	}
	return record, nil
}

// DeleteAccessToken removes the record for a raw token.
func (s *Storage) DeleteAccessToken(ctx context.Context, rawToken string) error {
	return s.store.Delete(ctx, tokenstore.CollectionAccessTokens, hashKey(rawToken))
}

// UpsertUser creates or updates a user and keeps the credential index
// consistent: hash(credential) maps to exactly one email, and stale index
// entries from a credential rotation are removed.
func (s *Storage) UpsertUser(ctx context.Context, user *User) error {
	if user.Email == "" {
		return fmt.Errorf("user email cannot be empty")
	}
	if user.UpstreamCredential == "" {
		return fmt.Errorf("user upstream credential cannot be empty")
	}

	existing, err := s.GetUser(ctx, user.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		if user.CreatedAt.IsZero() {
			user.CreatedAt = existing.CreatedAt
		}
		if existing.UpstreamCredential != user.UpstreamCredential {
			if err := s.store.Delete(ctx, tokenstore.CollectionCredentialIndex, hashKey(existing.UpstreamCredential)); err != nil {
				return err
			}
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	if err := s.putJSON(ctx, tokenstore.CollectionUsers, user.Email, user, 0); err != nil {
		return err
	}
	return s.store.Put(ctx, tokenstore.CollectionCredentialIndex,
		hashKey(user.UpstreamCredential), []byte(user.Email), 0)
}

// GetUser retrieves a user by email.
func (s *Storage) GetUser(ctx context.Context, email string) (*User, error) {
	return getJSON[User](ctx, s, tokenstore.CollectionUsers, email)
}

// GetUserByCredential resolves an upstream credential to its user via the
// credential index. Used by the login fast path.
func (s *Storage) GetUserByCredential(ctx context.Context, credential string) (*User, error) {
	email, err := s.store.Get(ctx, tokenstore.CollectionCredentialIndex, hashKey(credential))
	if err != nil {
		return nil, err
	}
	user, err := s.GetUser(ctx, string(email))
	if err != nil {
		return nil, err
	}
	// The index must agree with the user record; a stale mapping is a miss.
	if user.UpstreamCredential != credential {
		return nil, fmt.Errorf("%w: credential index out of date", ErrNotFound)
	}
	return user, nil
}
