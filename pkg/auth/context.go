// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements bearer-token issuance and validation for the
// gateway: the HS256 token codec, the protected-resource middleware for the
// OAuth MCP mount, and the legacy credential middleware for the v1 mount.
package auth

import (
	"context"
)

// credentialContextKey keys the per-request upstream credential.
type credentialContextKey struct{}

// httpRequestContextKey marks contexts that originate from an HTTP request.
// The upstream sink uses it to gate the environment-credential fallback,
// which is only legal outside HTTP request handling.
type httpRequestContextKey struct{}

// identityContextKey keys the authenticated identity on the OAuth mount.
type identityContextKey struct{}

// Identity describes the subject of a validated bearer token.
// It intentionally has no field for the upstream credential; the credential
// travels separately and never appears in claims or logs.
type Identity struct {
	Subject  string
	ClientID string
	Scopes   []string
}

// WithUpstreamCredential returns a context carrying the upstream credential
// for the current request.
func WithUpstreamCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialContextKey{}, credential)
}

// UpstreamCredentialFromContext retrieves the per-request upstream
// credential, if any.
func UpstreamCredentialFromContext(ctx context.Context) (string, bool) {
	credential, ok := ctx.Value(credentialContextKey{}).(string)
	if !ok || credential == "" {
		return "", false
	}
	return credential, true
}

// WithHTTPRequestMarker marks the context as belonging to an HTTP request.
func WithHTTPRequestMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, httpRequestContextKey{}, true)
}

// InHTTPRequest reports whether the context belongs to an HTTP request.
func InHTTPRequest(ctx context.Context) bool {
	marked, ok := ctx.Value(httpRequestContextKey{}).(bool)
	return ok && marked
}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}
