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

// Package authserver implements the embedded OAuth 2.1 authorization server:
// dynamic client registration, credential login, authorization code grant
// with PKCE (S256), token issuance, introspection, and RFC 8414/9728
// discovery.
package authserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/findata-mcp/pkg/auth"
	"github.com/stacklok/findata-mcp/pkg/authserver/storage"
	"github.com/stacklok/findata-mcp/pkg/config"
	"github.com/stacklok/findata-mcp/pkg/logger"
	"github.com/stacklok/findata-mcp/pkg/upstream"
)

// scopesSupported is the scope catalog advertised in discovery metadata.
var scopesSupported = []string{
	"read:eod",
	"read:intraday",
	"read:live",
	"read:fundamentals",
	"read:news",
	"read:technicals",
	"read:options",
	"read:marketplace",
	"read:screener",
	"read:macro",
	"read:user",
	"full-access",
}

// IdentityVerifier validates an upstream credential and returns the account
// it belongs to. Implemented by upstream.IdentityClient.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*upstream.Identity, error)
}

// ClientResolver resolves a URL-shaped client_id to a client record via its
// Client ID Metadata Document. Implemented by clientmeta.Resolver.
type ClientResolver interface {
	Resolve(ctx context.Context, clientID string) (*storage.Client, error)
}

// Server holds the authorization server's collaborators.
type Server struct {
	cfg      *config.Config
	store    *storage.Storage
	codec    *auth.Codec
	resolver ClientResolver
	identity IdentityVerifier
	sessions *sessionCodec
}

// New assembles the authorization server. The configuration must already be
// validated.
func New(
	cfg *config.Config,
	store *storage.Storage,
	codec *auth.Codec,
	resolver ClientResolver,
	identity IdentityVerifier,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		codec:    codec,
		resolver: resolver,
		identity: identity,
		sessions: newSessionCodec(cfg.SessionSecret, strings.HasPrefix(cfg.ServerURL, "https://")),
	}
}

// Routes registers the AS endpoints directly on the given router. They are
// inlined at the root rather than mounted under a prefix so that the
// well-known discovery paths resolve at the public origin.
func (s *Server) Routes(r chi.Router) {
	r.Post("/register", s.handleRegister)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLoginSubmit)
	r.Get("/authorize", s.handleAuthorize)
	r.Post("/token", s.handleToken)
	r.Post("/introspect", s.handleIntrospect)
	r.Get("/.well-known/oauth-authorization-server", s.handleASMetadata)
	r.Get("/.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)
	r.Get("/.well-known/oauth-protected-resource/*", s.handleProtectedResourceMetadata)
}

// baseURL returns the canonical external base URL for this request.
func (s *Server) baseURL(r *http.Request) string {
	return auth.RequestBaseURL(s.cfg.ServerURL, r)
}

// resourceURL returns the absolute URL of the protected MCP mount, which is
// both the token audience and the resource indicator.
func (s *Server) resourceURL(r *http.Request) string {
	return s.baseURL(r) + s.cfg.ResourcePath
}

// loadOrDiscoverClient resolves a client_id from the store, falling back to
// metadata-document discovery for HTTPS-URL client IDs.
func (s *Server) loadOrDiscoverClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if s.resolver == nil || !strings.HasPrefix(strings.ToLower(clientID), "https://") {
		return nil, fmt.Errorf("%w: unknown client", storage.ErrNotFound)
	}

	discovered, rerr := s.resolver.Resolve(ctx, clientID)
	if rerr != nil {
		logger.Warnw("client metadata discovery failed", "client_id", clientID, "error", rerr)
		return nil, fmt.Errorf("%w: unknown client", storage.ErrNotFound)
	}
	return discovered, nil
}

// randomToken returns a URL-safe random string with nbytes of entropy.
func randomToken(nbytes int) string {
	buf := make([]byte, nbytes)
	if _, err := rand.Read(buf); err != nil {
		// The process cannot operate without a random source.
		panic(fmt.Sprintf("random source unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// pkceS256 computes BASE64URL-NOPAD(SHA256(verifier)) per RFC 7636.
func pkceS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// safeRedirectURI reports whether a redirect target is an http or https URL
// we are willing to send the user agent to with an error parameter.
func safeRedirectURI(uri string) bool {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// addParams appends query parameters to a URL, preserving existing ones.
func addParams(rawURL string, params map[string]string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
