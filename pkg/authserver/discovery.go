// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"
	"strings"

	"github.com/stacklok/findata-mcp/pkg/config"
)

// handleASMetadata serves the RFC 8414 authorization server metadata
// document.
func (s *Server) handleASMetadata(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"registration_endpoint":                 base + "/register",
		"introspection_endpoint":                base + "/introspect",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic", "none"},
		"scopes_supported":                      scopesSupported,
		"client_id_metadata_document_supported": true,
	})
}

// handleProtectedResourceMetadata serves the RFC 9728 protected resource
// metadata document. The path suffix after the well-known prefix selects
// the resource: /.well-known/oauth-protected-resource/v2/mcp describes the
// OAuth mount, no suffix describes the origin itself.
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)

	suffix := strings.TrimPrefix(r.URL.Path, "/.well-known/oauth-protected-resource")
	suffix = strings.TrimRight(suffix, "/")

	var resource string
	switch suffix {
	case "", config.OAuthMountPath:
		resource = base + config.OAuthMountPath
	case config.LegacyMountPath:
		resource = base + config.LegacyMountPath
	default:
		resource = base + suffix
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource":                 resource,
		"authorization_servers":    []string{base},
		"scopes_supported":         scopesSupported,
		"bearer_methods_supported": []string{"header"},
		"resource_documentation":   base + "/",
	})
}
