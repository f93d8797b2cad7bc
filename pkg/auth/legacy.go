// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
)

// legacyQueryParams are checked in order for a raw upstream credential on
// the legacy mount.
var legacyQueryParams = []string{"apikey", "api_key", "api-key", "api_token"}

// LegacyMiddleware extracts a raw upstream credential from the request and
// attaches it to the request context. On the legacy mount the bearer token
// IS the upstream credential, not a signed token.
//
// Resolution order: existing context value, Authorization Bearer, X-API-Key
// header, then the apikey/api_key/api-key/api_token query parameters.
// Absence is not an error here; the upstream sink reports it when a tool
// actually needs the credential.
func LegacyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithHTTPRequestMarker(r.Context())

		if _, ok := UpstreamCredentialFromContext(ctx); ok {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if credential := extractLegacyCredential(r); credential != "" {
			ctx = WithUpstreamCredential(ctx, credential)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractLegacyCredential(r *http.Request) string {
	if token, ok := extractBearerToken(r); ok {
		return token
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	query := r.URL.Query()
	for _, param := range legacyQueryParams {
		if value := query.Get(param); value != "" {
			return value
		}
	}
	return ""
}
