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

// Package clientmeta resolves URL-shaped client IDs into registered clients
// by fetching Client ID Metadata Documents, with SSRF protection and a
// bounded TTL cache.
package clientmeta

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/findata-mcp/pkg/authserver/storage"
	"github.com/stacklok/findata-mcp/pkg/logger"
	"github.com/stacklok/findata-mcp/pkg/networking"
)

// ErrInvalidClientID indicates the client_id URL or its metadata document
// failed validation. Callers map this to the OAuth invalid_client error.
var ErrInvalidClientID = errors.New("invalid client ID")

// maxCacheEntries bounds the metadata cache so hostile clients cannot grow
// it without limit.
const maxCacheEntries = 1000

// Document is a Client ID Metadata Document as fetched from the client_id
// URL.
type Document struct {
	ClientID                string   `json:"client_id"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

type cacheEntry struct {
	client    *storage.Client
	expiresAt time.Time
}

// Config tunes document fetching and caching.
type Config struct {
	Timeout    time.Duration
	MaxBytes   int64
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// Resolver fetches and caches client metadata documents.
type Resolver struct {
	store  *storage.Storage
	client networking.HTTPClient
	cfg    Config

	// lookupIP is swappable for tests; defaults to the system resolver.
	lookupIP func(ctx context.Context, host string) ([]net.IP, error)

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New builds a resolver over the given typed storage. The HTTP client is
// hardened: HTTPS only, no redirects, and connections to private addresses
// are refused at dial time as a second layer behind the pre-resolution
// check.
func New(store *storage.Storage, cfg Config) (*Resolver, error) {
	client, err := networking.NewHTTPClientBuilder().
		WithTimeout(cfg.Timeout).
		WithHTTPSOnly().
		WithoutPrivateIPs().
		WithoutRedirects().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata HTTP client: %w", err)
	}

	return &Resolver{
		store:  store,
		client: client,
		cfg:    cfg,
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		},
		cache: make(map[string]cacheEntry),
	}, nil
}

// Resolve turns a URL-shaped client_id into a registered public client.
// Cached documents are served without network I/O until their TTL lapses.
// Resolved clients are persisted so later lookups by client_id hit the
// store directly.
func (r *Resolver) Resolve(ctx context.Context, clientIDURL string) (*storage.Client, error) {
	if err := ValidateClientIDURL(clientIDURL); err != nil {
		return nil, err
	}

	if client := r.cached(clientIDURL); client != nil {
		logger.Debugw("client metadata cache hit", "client_id", clientIDURL)
		return client, nil
	}

	if err := r.checkHostResolvesPublic(ctx, clientIDURL); err != nil {
		return nil, err
	}

	result, err := networking.FetchJSON[Document](ctx, r.client, clientIDURL,
		networking.WithMaxResponseSize(r.cfg.MaxBytes),
	)
	if err != nil {
		logger.Debugw("client metadata fetch failed", "client_id", clientIDURL, "error", err)
		return nil, fmt.Errorf("%w: metadata fetch failed: %w", ErrInvalidClientID, err)
	}

	doc := result.Data
	if err := validateDocument(&doc, clientIDURL); err != nil {
		return nil, err
	}

	client := &storage.Client{
		ClientID:                clientIDURL,
		RedirectURIs:            doc.RedirectURIs,
		ClientName:              doc.ClientName,
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: storage.AuthMethodNone,
		CreatedAt:               time.Now(),
	}

	if err := r.store.PutClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to persist discovered client: %w", err)
	}

	ttl := r.cacheTTL(result.Headers.Get("Cache-Control"))
	r.storeInCache(clientIDURL, client, ttl)
	logger.Infow("client metadata document resolved",
		"client_id", clientIDURL, "cache_ttl", ttl)

	return client, nil
}

// ValidateClientIDURL checks the structural requirements of a URL-shaped
// client ID: HTTPS, a host, a real path, and no fragment, userinfo, or dot
// segments.
func ValidateClientIDURL(clientIDURL string) error {
	parsed, err := url.Parse(clientIDURL)
	if err != nil {
		return fmt.Errorf("%w: malformed URL", ErrInvalidClientID)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be https", ErrInvalidClientID)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidClientID)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return fmt.Errorf("%w: path is required", ErrInvalidClientID)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("%w: fragment not allowed", ErrInvalidClientID)
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: userinfo not allowed", ErrInvalidClientID)
	}
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("%w: dot segments not allowed", ErrInvalidClientID)
		}
	}
	return nil
}

// checkHostResolvesPublic resolves the hostname and requires every address
// to be globally routable. Failing closed here means no HTTP request is
// ever sent toward a private target.
func (r *Resolver) checkHostResolvesPublic(ctx context.Context, clientIDURL string) error {
	parsed, err := url.Parse(clientIDURL)
	if err != nil {
		return fmt.Errorf("%w: malformed URL", ErrInvalidClientID)
	}
	host := parsed.Hostname()

	ips, err := r.lookupIP(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: hostname resolution failed: %w", ErrInvalidClientID, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: hostname resolves to no addresses", ErrInvalidClientID)
	}
	for _, ip := range ips {
		if !ip.IsGlobalUnicast() || networking.IsPrivateIP(ip) {
			logger.Warnw("client metadata host resolves to non-public address",
				"client_id", clientIDURL, "host", host)
			return fmt.Errorf("%w: host resolves to a non-public address", ErrInvalidClientID)
		}
	}
	return nil
}

func validateDocument(doc *Document, clientIDURL string) error {
	if doc.ClientID != clientIDURL {
		return fmt.Errorf("%w: document client_id does not match its URL", ErrInvalidClientID)
	}
	if len(doc.RedirectURIs) == 0 {
		return fmt.Errorf("%w: redirect_uris must be a non-empty list", ErrInvalidClientID)
	}
	for _, uri := range doc.RedirectURIs {
		if uri == "" {
			return fmt.Errorf("%w: redirect_uris must not contain empty entries", ErrInvalidClientID)
		}
	}
	// Discovered clients are always public; any secret-based method is
	// forbidden.
	switch doc.TokenEndpointAuthMethod {
	case "", storage.AuthMethodNone:
	default:
		return fmt.Errorf("%w: token_endpoint_auth_method %q is not allowed for metadata clients",
			ErrInvalidClientID, doc.TokenEndpointAuthMethod)
	}
	return nil
}

// cacheTTL derives the cache lifetime from a Cache-Control header, clamped
// to [MinTTL, MaxTTL], falling back to DefaultTTL when no max-age is
// present.
func (r *Resolver) cacheTTL(cacheControl string) time.Duration {
	ttl := r.cfg.DefaultTTL
	if maxAge, ok := parseMaxAge(cacheControl); ok {
		ttl = maxAge
		if ttl < r.cfg.MinTTL {
			ttl = r.cfg.MinTTL
		}
		if ttl > r.cfg.MaxTTL {
			ttl = r.cfg.MaxTTL
		}
	}
	return ttl
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		name, value, found := strings.Cut(directive, "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

func (r *Resolver) cached(clientIDURL string) *storage.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[clientIDURL]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.client
}

func (r *Resolver) storeInCache(clientIDURL string, client *storage.Client, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) >= maxCacheEntries {
		now := time.Now()
		for key, entry := range r.cache {
			if now.After(entry.expiresAt) {
				delete(r.cache, key)
			}
		}
		// Still full of live entries: drop one arbitrarily rather than
		// grow without bound.
		if len(r.cache) >= maxCacheEntries {
			for key := range r.cache {
				delete(r.cache, key)
				break
			}
		}
	}

	r.cache[clientIDURL] = cacheEntry{
		client:    client,
		expiresAt: time.Now().Add(ttl),
	}
}

// CacheLen reports the number of cached documents. Used by tests.
func (r *Resolver) CacheLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
