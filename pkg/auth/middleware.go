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

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/findata-mcp/pkg/authserver/storage"
	"github.com/stacklok/findata-mcp/pkg/logger"
)

// wellKnownProtectedResource is the RFC 9728 well-known path prefix. The
// mount path is appended in path-insertion form.
const wellKnownProtectedResource = "/.well-known/oauth-protected-resource"

// MiddlewareOptions configures the protected-resource middleware.
type MiddlewareOptions struct {
	// Codec verifies token signatures and expiry.
	Codec *Codec

	// Store resolves token records and users.
	Store *storage.Storage

	// ServerURL is the configured canonical base URL; when empty the base
	// is derived per request from forwarding headers.
	ServerURL string

	// MountPath is the mount-root path of the protected surface, e.g.
	// "/v2/mcp". The expected token audience is base URL + MountPath.
	MountPath string

	// ExcludePaths pass through without a token. Paths are relative to the
	// mount root.
	ExcludePaths []string

	// DefaultScope is advertised in bearer challenges.
	DefaultScope string
}

// TokenMiddleware returns an HTTP middleware that enforces bearer-token
// authentication on the OAuth MCP mount. A request that passes validation
// continues downstream with the subject's upstream credential and identity
// attached to the request context.
//
// Validation requires both a valid signature and a live store entry for the
// token; a signed token whose record is gone is treated as revoked.
func TokenMiddleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	excluded := make(map[string]bool, len(opts.ExcludePaths))
	for _, p := range opts.ExcludePaths {
		excluded[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithHTTPRequestMarker(r.Context())
			r = r.WithContext(ctx)

			// Preflight requests carry no credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			rawToken, ok := extractBearerToken(r)
			if !ok {
				writeChallenge(w, r, opts, "Missing or empty bearer token")
				return
			}

			claims, err := opts.Codec.Verify(rawToken)
			if err != nil {
				logger.Debugw("bearer token verification failed", "error", err)
				writeChallenge(w, r, opts, "Invalid or expired token")
				return
			}

			expectedAudience := RequestBaseURL(opts.ServerURL, r) + opts.MountPath
			if !AudienceMatches(claims.Audience, expectedAudience) {
				logger.Debugw("bearer token audience mismatch",
					"expected", expectedAudience, "audience", []string(claims.Audience))
				writeChallenge(w, r, opts, "Token audience does not match this resource")
				return
			}

			if claims.Subject == "" {
				writeChallenge(w, r, opts, "Token has no subject")
				return
			}

			record, err := opts.Store.GetAccessToken(ctx, rawToken)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					writeChallenge(w, r, opts, "Token is not recognized")
					return
				}
				logger.Errorw("access token lookup failed", "error", err)
				writeStorageError(w)
				return
			}

			user, err := opts.Store.GetUser(ctx, claims.Subject)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					writeChallenge(w, r, opts, "Token subject is unknown")
					return
				}
				logger.Errorw("user lookup failed", "error", err)
				writeStorageError(w)
				return
			}

			ctx = WithUpstreamCredential(ctx, user.UpstreamCredential)
			ctx = WithIdentity(ctx, &Identity{
				Subject:  claims.Subject,
				ClientID: claims.ClientID,
				Scopes:   record.Scopes,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// buildWWWAuthenticate assembles the RFC 6750 challenge value. The
// resource_metadata URL uses path-insertion form: the mount path is appended
// to the well-known protected-resource path.
func buildWWWAuthenticate(baseURL, mountPath, scope, errorDescription string) string {
	params := []string{
		fmt.Sprintf("realm=%q", baseURL),
		fmt.Sprintf("resource_metadata=%q", baseURL+wellKnownProtectedResource+mountPath),
	}
	if scope != "" {
		params = append(params, fmt.Sprintf("scope=%q", scope))
	}
	params = append(params,
		`error="invalid_token"`,
		fmt.Sprintf("error_description=%q", sanitizeHeaderValue(errorDescription)),
	)
	return "Bearer " + strings.Join(params, ", ")
}

// sanitizeHeaderValue strips characters that would corrupt a quoted-string
// header parameter.
func sanitizeHeaderValue(value string) string {
	value = strings.ReplaceAll(value, `\`, ``)
	value = strings.ReplaceAll(value, `"`, ``)
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return value
}

func writeChallenge(w http.ResponseWriter, r *http.Request, opts MiddlewareOptions, description string) {
	baseURL := RequestBaseURL(opts.ServerURL, r)
	w.Header().Set("WWW-Authenticate",
		buildWWWAuthenticate(baseURL, opts.MountPath, opts.DefaultScope, description))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": description,
	})
}

func writeStorageError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "server_error",
		"message": "Internal storage error",
	})
}
