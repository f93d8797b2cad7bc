// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedStore wraps another Store and encrypts values at rest with
// XChaCha20-Poly1305. Keys pass through unmodified; callers already hash
// sensitive keys before they reach a store, so only the values need sealing.
type SealedStore struct {
	inner Store
	key   []byte
}

// NewSealedStore derives a 256-bit sealing key from passphrase and wraps
// inner. The same passphrase must be used across restarts or previously
// stored values become unreadable.
func NewSealedStore(inner Store, passphrase string) (*SealedStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase is required")
	}
	key := sha256.Sum256([]byte(passphrase))
	return &SealedStore{inner: inner, key: key[:]}, nil
}

func (s *SealedStore) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *SealedStore) open(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("stored value too short to contain nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt stored value: %w", err)
	}
	return plaintext, nil
}

// Put seals value and stores the ciphertext in the inner store.
func (s *SealedStore) Put(ctx context.Context, collection, key string, value []byte, ttl time.Duration) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, collection, key, sealed, ttl)
}

// Get retrieves and unseals the value.
func (s *SealedStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	return s.open(sealed)
}

// Delete removes the entry from the inner store.
func (s *SealedStore) Delete(ctx context.Context, collection, key string) error {
	return s.inner.Delete(ctx, collection, key)
}

// Consume atomically retrieves, removes, and unseals the value.
func (s *SealedStore) Consume(ctx context.Context, collection, key string) ([]byte, error) {
	sealed, err := s.inner.Consume(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	return s.open(sealed)
}

// Close closes the inner store.
func (s *SealedStore) Close() error {
	return s.inner.Close()
}

// Compile-time interface compliance check
var _ Store = (*SealedStore)(nil)
