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

// Package upstream talks to the financial-data API on behalf of tool
// invocations. The sink owns per-request credential resolution and response
// shaping; tool wrappers only build URLs.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/findata-mcp/pkg/auth"
	"github.com/stacklok/findata-mcp/pkg/logger"
)

// maxErrorText caps upstream response text embedded in shaped errors.
const maxErrorText = 2000

// missingTokenMessage is returned when no credential can be resolved for a
// tool invocation.
const missingTokenMessage = "Missing API token. Authenticate on the OAuth mount, " +
	"pass an API key on the legacy mount, or set the FINDATA_API_KEY environment variable."

// Sink is the single shared upstream HTTP gateway for all tool wrappers.
type Sink struct {
	baseURL string

	// fallbackCredential is the process-wide credential used only when the
	// invocation does not originate from an HTTP request.
	fallbackCredential string

	timeout time.Duration

	mu     sync.Mutex
	client *http.Client
}

// NewSink creates a sink for the upstream API at baseURL.
func NewSink(baseURL, fallbackCredential string, timeout time.Duration) *Sink {
	return &Sink{
		baseURL:            strings.TrimRight(baseURL, "/"),
		fallbackCredential: fallbackCredential,
		timeout:            timeout,
	}
}

// httpClient returns the shared client, creating it on first use.
func (s *Sink) httpClient() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s.client
}

// BuildURL joins an upstream path with query parameters.
func (s *Sink) BuildURL(path string, params url.Values) string {
	u := s.baseURL + "/" + strings.TrimLeft(path, "/")
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// resolveCredential picks the credential for this invocation. Request-local
// state wins; the environment fallback is only legal outside an HTTP
// request (non-HTTP tool transports).
func (s *Sink) resolveCredential(ctx context.Context) (string, bool) {
	if credential, ok := auth.UpstreamCredentialFromContext(ctx); ok {
		return credential, true
	}
	if !auth.InHTTPRequest(ctx) && s.fallbackCredential != "" {
		return s.fallbackCredential, true
	}
	return "", false
}

// Fetch performs a GET against the upstream API, injecting the per-request
// credential as the api_token query parameter unless the URL already
// carries one. The returned string is always a JSON document: either the
// upstream body passed through, or a shaped error object.
func (s *Sink) Fetch(ctx context.Context, requestURL string) string {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return errorJSON(map[string]any{"error": fmt.Sprintf("invalid upstream URL: %v", err)})
	}

	query := parsed.Query()
	if query.Get("api_token") == "" {
		credential, ok := s.resolveCredential(ctx)
		if !ok {
			logger.Debugw("tool invocation without resolvable credential", "path", parsed.Path)
			return errorJSON(map[string]any{"error": missingTokenMessage})
		}
		query.Set("api_token", credential)
		parsed.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return errorJSON(map[string]any{"error": fmt.Sprintf("failed to build request: %v", err)})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		// The error may embed the full URL including api_token; log only
		// the path.
		logger.Warnw("upstream request failed", "path", parsed.Path)
		return errorJSON(map[string]any{"error": "upstream request failed"})
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorJSON(map[string]any{"error": fmt.Sprintf("failed to read upstream response: %v", err)})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorJSON(map[string]any{
			"error":       "upstream returned an error status",
			"status_code": resp.StatusCode,
			"text":        truncate(string(body), maxErrorText),
		})
	}

	contentType := resp.Header.Get("Content-Type")
	if !json.Valid(body) {
		return errorJSON(map[string]any{
			"error":        "upstream returned a non-JSON response",
			"status_code":  resp.StatusCode,
			"content_type": contentType,
			"text":         truncate(string(body), maxErrorText),
		})
	}

	return string(body)
}

// FetchPath is a convenience wrapper: build the URL and fetch it.
func (s *Sink) FetchPath(ctx context.Context, path string, params url.Values) string {
	return s.Fetch(ctx, s.BuildURL(path, params))
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

func errorJSON(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}
