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

// Package config loads and validates the gateway configuration from the
// environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/findata-mcp/pkg/logger"
)

// Mount paths for the two MCP surfaces. The OAuth resource path must match
// the protected mount or bearer challenges would advertise metadata for a
// path that is not actually served.
const (
	LegacyMountPath = "/v1/mcp"
	OAuthMountPath  = "/v2/mcp"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// ServerURL is the externally visible base URL of the gateway. When
	// empty, the canonical base URL is derived per request from forwarding
	// headers.
	ServerURL string

	// ResourcePath is the mount path of the OAuth-protected MCP surface,
	// used as the token audience suffix. Must equal OAuthMountPath.
	ResourcePath string

	// JWTSecret signs and verifies access tokens (HS256). Required.
	JWTSecret string

	// JWTAlgorithm is the token signing algorithm. Only HS256 is supported.
	JWTAlgorithm string

	// SessionSecret keys the login session cookie. Generated at startup
	// when absent, which invalidates sessions across restarts.
	SessionSecret string

	// AccessTokenExpires and AuthCodeExpires are token lifetimes.
	AccessTokenExpires time.Duration
	AuthCodeExpires    time.Duration

	// DefaultScope is granted when an authorization request names none.
	DefaultScope string

	// Client ID metadata document fetching.
	ClientMetaTimeout    time.Duration
	ClientMetaMaxBytes   int64
	ClientMetaDefaultTTL time.Duration
	ClientMetaMinTTL     time.Duration
	ClientMetaMaxTTL     time.Duration

	// Token store backend selection. Memory when both are empty; the
	// encryption key, when set, seals values at rest in whichever backend
	// is selected.
	StorageDir           string
	RedisURL             string
	StorageEncryptionKey string

	// Upstream financial-data API.
	APIBase string
	// APIKey is the fallback upstream credential for non-HTTP callers.
	// Never used to serve an HTTP request.
	APIKey string

	UpstreamTimeout time.Duration
	IdentityTimeout time.Duration
}

// Load reads the configuration from the environment and applies defaults.
// It does not validate; call Validate before serving.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("MCP_OAUTH_RESOURCE_PATH", OAuthMountPath)
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("ACCESS_TOKEN_EXPIRES", 3600)
	v.SetDefault("AUTH_CODE_EXPIRES", 600)
	v.SetDefault("DEFAULT_SCOPE", "full-access")
	v.SetDefault("CLIENT_META_HTTP_TIMEOUT", 5)
	v.SetDefault("CLIENT_META_MAX_BYTES", 1024*1024)
	v.SetDefault("CLIENT_META_DEFAULT_TTL", 3600)
	v.SetDefault("CLIENT_META_MIN_TTL", 60)
	v.SetDefault("CLIENT_META_MAX_TTL", 86400)
	v.SetDefault("FINDATA_API_BASE", "https://findata.example.com/api")
	v.SetDefault("UPSTREAM_HTTP_TIMEOUT", 30)
	v.SetDefault("IDENTITY_HTTP_TIMEOUT", 10)

	cfg := &Config{
		Host:                 v.GetString("HOST"),
		Port:                 v.GetInt("PORT"),
		ServerURL:            strings.TrimRight(v.GetString("MCP_SERVER_URL"), "/"),
		ResourcePath:         v.GetString("MCP_OAUTH_RESOURCE_PATH"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		JWTAlgorithm:         v.GetString("JWT_ALGORITHM"),
		SessionSecret:        v.GetString("SESSION_SECRET"),
		AccessTokenExpires:   time.Duration(v.GetInt("ACCESS_TOKEN_EXPIRES")) * time.Second,
		AuthCodeExpires:      time.Duration(v.GetInt("AUTH_CODE_EXPIRES")) * time.Second,
		DefaultScope:         v.GetString("DEFAULT_SCOPE"),
		ClientMetaTimeout:    time.Duration(v.GetInt("CLIENT_META_HTTP_TIMEOUT")) * time.Second,
		ClientMetaMaxBytes:   v.GetInt64("CLIENT_META_MAX_BYTES"),
		ClientMetaDefaultTTL: time.Duration(v.GetInt("CLIENT_META_DEFAULT_TTL")) * time.Second,
		ClientMetaMinTTL:     time.Duration(v.GetInt("CLIENT_META_MIN_TTL")) * time.Second,
		ClientMetaMaxTTL:     time.Duration(v.GetInt("CLIENT_META_MAX_TTL")) * time.Second,
		StorageDir:           v.GetString("OAUTH_TOKEN_STORAGE_DIR"),
		RedisURL:             v.GetString("OAUTH_TOKEN_REDIS_URL"),
		StorageEncryptionKey: v.GetString("OAUTH_STORAGE_ENCRYPTION_KEY"),
		APIBase:              strings.TrimRight(v.GetString("FINDATA_API_BASE"), "/"),
		APIKey:               v.GetString("FINDATA_API_KEY"),
		UpstreamTimeout:      time.Duration(v.GetInt("UPSTREAM_HTTP_TIMEOUT")) * time.Second,
		IdentityTimeout:      time.Duration(v.GetInt("IDENTITY_HTTP_TIMEOUT")) * time.Second,
	}

	if cfg.SessionSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Panicf("failed to generate session secret: %v", err)
		}
		cfg.SessionSecret = hex.EncodeToString(buf)
		logger.Warn("SESSION_SECRET not set; generated an ephemeral secret, login sessions will not survive restarts")
	}

	return cfg
}

// Validate checks that the Config is usable. Serving with an invalid config
// is a startup error.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTAlgorithm != "HS256" {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q: only HS256 is supported", c.JWTAlgorithm)
	}
	if c.ResourcePath != OAuthMountPath {
		return fmt.Errorf("MCP_OAUTH_RESOURCE_PATH %q does not match the OAuth MCP mount %q",
			c.ResourcePath, OAuthMountPath)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.AccessTokenExpires <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRES must be positive")
	}
	if c.AuthCodeExpires <= 0 {
		return fmt.Errorf("AUTH_CODE_EXPIRES must be positive")
	}
	if c.ClientMetaMinTTL > c.ClientMetaMaxTTL {
		return fmt.Errorf("CLIENT_META_MIN_TTL exceeds CLIENT_META_MAX_TTL")
	}
	if c.APIBase == "" {
		return fmt.Errorf("FINDATA_API_BASE is required")
	}
	if c.StorageDir != "" && c.RedisURL != "" {
		return fmt.Errorf("OAUTH_TOKEN_STORAGE_DIR and OAUTH_TOKEN_REDIS_URL are mutually exclusive")
	}

	logger.Debugw("config validation passed",
		"resourcePath", c.ResourcePath,
		"storageDir", c.StorageDir != "",
		"redis", c.RedisURL != "",
	)
	return nil
}

// ListenAddr returns the host:port pair to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
