// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"strings"
)

// AudienceMatches reports whether a token's aud claim permits the expected
// resource URL. Comparison is trailing-slash tolerant on both sides. An
// absent audience (no aud claim) is accepted; a present audience must
// contain a matching element.
func AudienceMatches(audiences []string, expected string) bool {
	if len(audiences) == 0 {
		return true
	}
	want := strings.TrimRight(expected, "/")
	for _, aud := range audiences {
		if strings.TrimRight(aud, "/") == want {
			return true
		}
	}
	return false
}

// RequestBaseURL returns the canonical external base URL for a request,
// without a trailing slash. A configured public URL takes precedence;
// otherwise X-Forwarded-Proto/X-Forwarded-Host combine; otherwise the
// request's own scheme and host are used.
func RequestBaseURL(configuredURL string, r *http.Request) string {
	if configuredURL != "" {
		return strings.TrimRight(configuredURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}

	return scheme + "://" + host
}
