// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"context"
	"fmt"

	"github.com/stacklok/findata-mcp/pkg/logger"
)

// FactoryConfig selects and configures a storage backend.
type FactoryConfig struct {
	// StorageDir selects the disk backend when non-empty.
	StorageDir string

	// RedisURL selects the Redis backend when non-empty.
	// Mutually exclusive with StorageDir.
	RedisURL string

	// EncryptionKey, when non-empty, wraps the selected backend so values
	// are sealed at rest. Meaningful for the persistent backends; applied
	// to memory too for uniform behavior.
	EncryptionKey string
}

// NewStore builds the configured Store. With neither a storage directory nor
// a Redis URL configured, an in-memory store is returned.
func NewStore(ctx context.Context, cfg FactoryConfig) (Store, error) {
	if cfg.StorageDir != "" && cfg.RedisURL != "" {
		return nil, fmt.Errorf("storage directory and redis URL are mutually exclusive")
	}

	var (
		store Store
		err   error
	)
	switch {
	case cfg.RedisURL != "":
		store, err = NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Infow("token store initialized", "backend", "redis")
	case cfg.StorageDir != "":
		store, err = NewDiskStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		logger.Infow("token store initialized", "backend", "disk", "dir", cfg.StorageDir)
	default:
		store = NewMemoryStore()
		logger.Infow("token store initialized", "backend", "memory")
	}

	if cfg.EncryptionKey != "" {
		sealed, err := NewSealedStore(store, cfg.EncryptionKey)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store = sealed
		logger.Info("token store encryption at rest enabled")
	}

	return store, nil
}
