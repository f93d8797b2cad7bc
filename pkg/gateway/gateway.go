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

// Package gateway composes the public HTTP surface: the authorization
// server inlined at the root origin, the legacy MCP mount at /v1/mcp, and
// the OAuth-protected MCP mount at /v2/mcp, all under one listener.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/findata-mcp/pkg/auth"
	"github.com/stacklok/findata-mcp/pkg/authserver"
	"github.com/stacklok/findata-mcp/pkg/authserver/storage"
	"github.com/stacklok/findata-mcp/pkg/clientmeta"
	"github.com/stacklok/findata-mcp/pkg/config"
	"github.com/stacklok/findata-mcp/pkg/logger"
	"github.com/stacklok/findata-mcp/pkg/tokenstore"
	"github.com/stacklok/findata-mcp/pkg/tools"
	"github.com/stacklok/findata-mcp/pkg/upstream"
	"github.com/stacklok/findata-mcp/pkg/versions"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	shutdownTimeout          = 10 * time.Second
)

// Gateway owns the HTTP server and the resources behind it. Start and Stop
// pair up: the token store outlives the HTTP server, so Stop shuts the
// server down first and closes the store last.
type Gateway struct {
	cfg     *config.Config
	backend tokenstore.Store
	store   *storage.Storage

	legacyMount http.Handler
	oauthMount  http.Handler
	authServer  *authserver.Server

	httpServer *http.Server
	listener   net.Listener
}

// New assembles the gateway from a validated configuration.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := tokenstore.NewStore(ctx, tokenstore.FactoryConfig{
		StorageDir:    cfg.StorageDir,
		RedisURL:      cfg.RedisURL,
		EncryptionKey: cfg.StorageEncryptionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	store := storage.New(backend)

	codec, err := auth.NewCodec(cfg.JWTSecret)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	resolver, err := clientmeta.New(store, clientmeta.Config{
		Timeout:    cfg.ClientMetaTimeout,
		MaxBytes:   cfg.ClientMetaMaxBytes,
		DefaultTTL: cfg.ClientMetaDefaultTTL,
		MinTTL:     cfg.ClientMetaMinTTL,
		MaxTTL:     cfg.ClientMetaMaxTTL,
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create client metadata resolver: %w", err)
	}

	identity := upstream.NewIdentityClient(cfg.APIBase, cfg.IdentityTimeout)
	sink := upstream.NewSink(cfg.APIBase, cfg.APIKey, cfg.UpstreamTimeout)

	version := versions.GetVersionInfo().Version

	// Each mount gets its own MCP server instance so their protocol
	// sessions stay independent. Both carry the same tool catalog.
	legacyMCP := newStreamableMount(tools.NewMCPServer("findata-mcp-legacy", version, sink))
	oauthMCP := newStreamableMount(tools.NewMCPServer("findata-mcp", version, sink))

	tokenMiddleware := auth.TokenMiddleware(auth.MiddlewareOptions{
		Codec:        codec,
		Store:        store,
		ServerURL:    cfg.ServerURL,
		MountPath:    config.OAuthMountPath,
		DefaultScope: cfg.DefaultScope,
	})

	return &Gateway{
		cfg:         cfg,
		backend:     backend,
		store:       store,
		legacyMount: auth.LegacyMiddleware(legacyMCP),
		oauthMount:  tokenMiddleware(oauthMCP),
		authServer:  authserver.New(cfg, store, codec, resolver, identity),
	}, nil
}

// newStreamableMount wraps an MCP server in a streamable HTTP transport
// configured to serve at the mount root.
func newStreamableMount(mcpServer *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath("/"),
	)
}

// Router builds the outer router. The authorization server routes are
// inlined at the root so the well-known discovery paths resolve at the
// public origin; the exact-path mount handlers are registered before the
// prefix mounts so that POST /v2/mcp is served directly instead of being
// redirected to /v2/mcp/.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	g.authServer.Routes(r)

	registerMount(r, config.LegacyMountPath, g.legacyMount)
	registerMount(r, config.OAuthMountPath, g.oauthMount)

	return r
}

// registerMount registers both the exact-path handlers and the prefix mount
// for one MCP surface.
func registerMount(r chi.Router, mountPath string, h http.Handler) {
	exact := exactPathHandler(h)
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodOptions} {
		r.Method(method, mountPath, exact)
	}
	r.Handle(mountPath+"/*", http.StripPrefix(mountPath, h))
}

// exactPathHandler forwards a request for the bare mount path to the inner
// handler with the path rewritten to the inner root, so the inner
// application sees the same request it would get for the trailing-slash
// form and no redirect is ever emitted.
func exactPathHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner := r.Clone(r.Context())
		inner.URL.Path = "/"
		inner.URL.RawPath = ""
		h.ServeHTTP(w, inner)
	})
}

// Start binds the listener and begins serving. It returns once the
// listener is accepting; serve errors after that are reported on the
// returned channel.
func (g *Gateway) Start(_ context.Context) (<-chan error, error) {
	g.httpServer = &http.Server{
		Addr:              g.cfg.ListenAddr(),
		Handler:           g.Router(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	listener, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", g.httpServer.Addr, err)
	}
	g.listener = listener

	logger.Infow("gateway listening",
		"addr", listener.Addr().String(),
		"legacy_mount", config.LegacyMountPath,
		"oauth_mount", config.OAuthMountPath,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()
	return errCh, nil
}

// Addr returns the bound listener address, useful when PORT is 0.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop drains the HTTP server and then closes the token store.
func (g *Gateway) Stop(ctx context.Context) error {
	var errs []error
	if g.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}
	if err := g.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("token store close: %w", err))
	}
	return errors.Join(errs...)
}
