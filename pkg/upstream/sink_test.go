// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/findata-mcp/pkg/auth"
)

func newTestSink(t *testing.T, fallback string, handler http.HandlerFunc) *Sink {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewSink(server.URL, fallback, 5*time.Second)
}

func TestSinkInjectsContextCredential(t *testing.T) {
	t.Parallel()

	var gotToken string
	sink := newTestSink(t, "", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("api_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price": 42.5}`))
	})

	ctx := auth.WithHTTPRequestMarker(context.Background())
	ctx = auth.WithUpstreamCredential(ctx, "ctx-credential")

	body := sink.FetchPath(ctx, "/eod/AAPL.US", url.Values{"fmt": {"json"}})

	assert.Equal(t, "ctx-credential", gotToken)
	assert.JSONEq(t, `{"price": 42.5}`, body)
}

func TestSinkEnvFallbackOnlyOutsideHTTP(t *testing.T) {
	t.Parallel()

	var gotToken string
	sink := newTestSink(t, "env-credential", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("api_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	// Outside an HTTP request the environment credential applies.
	body := sink.FetchPath(context.Background(), "/eod/AAPL.US", nil)
	assert.Equal(t, "env-credential", gotToken)
	assert.JSONEq(t, `{}`, body)

	// Inside an HTTP request without a per-request credential it must not.
	gotToken = ""
	ctx := auth.WithHTTPRequestMarker(context.Background())
	body = sink.FetchPath(ctx, "/eod/AAPL.US", nil)
	assert.Empty(t, gotToken)

	var shaped map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &shaped))
	errMsg, _ := shaped["error"].(string)
	assert.True(t, strings.HasPrefix(errMsg, "Missing API token."))
}

func TestSinkMissingCredential(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t, "", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("upstream must not be called without a credential")
		w.WriteHeader(http.StatusOK)
	})

	ctx := auth.WithHTTPRequestMarker(context.Background())
	body := sink.FetchPath(ctx, "/eod/AAPL.US", nil)

	var shaped map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &shaped))
	errMsg, _ := shaped["error"].(string)
	assert.True(t, strings.HasPrefix(errMsg, "Missing API token."))
}

func TestSinkDoesNotOverrideExplicitToken(t *testing.T) {
	t.Parallel()

	var gotToken string
	sink := newTestSink(t, "", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("api_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	ctx := auth.WithUpstreamCredential(auth.WithHTTPRequestMarker(context.Background()), "ctx-credential")
	_ = sink.FetchPath(ctx, "/eod/AAPL.US", url.Values{"api_token": {"explicit"}})

	assert.Equal(t, "explicit", gotToken)
}

func TestSinkShapesNon2xx(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t, "", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("subscription required"))
	})

	ctx := auth.WithUpstreamCredential(context.Background(), "k")
	body := sink.FetchPath(ctx, "/eod/AAPL.US", nil)

	var shaped map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &shaped))
	assert.EqualValues(t, http.StatusPaymentRequired, shaped["status_code"])
	assert.Equal(t, "subscription required", shaped["text"])
	assert.NotEmpty(t, shaped["error"])
}

func TestSinkShapesNonJSON(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t, "", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hi</html>"))
	})

	ctx := auth.WithUpstreamCredential(context.Background(), "k")
	body := sink.FetchPath(ctx, "/eod/AAPL.US", nil)

	var shaped map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &shaped))
	assert.Equal(t, "text/html", shaped["content_type"])
	assert.Equal(t, "<html>hi</html>", shaped["text"])
}

func TestSinkTruncatesLongErrorText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 5000)
	sink := newTestSink(t, "", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(long))
	})

	ctx := auth.WithUpstreamCredential(context.Background(), "k")
	body := sink.FetchPath(ctx, "/eod/AAPL.US", nil)

	var shaped map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &shaped))
	text, _ := shaped["text"].(string)
	assert.Len(t, text, 2000)
}

func TestSinkTransportFailure(t *testing.T) {
	t.Parallel()

	sink := NewSink("http://127.0.0.1:1", "", 500*time.Millisecond)
	ctx := auth.WithUpstreamCredential(context.Background(), "k")
	body := sink.FetchPath(ctx, "/eod/AAPL.US", nil)

	var shaped map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &shaped))
	assert.NotEmpty(t, shaped["error"])
	// The shaped error must not leak the credential.
	assert.NotContains(t, body, "k=")
}

func TestIdentityClientVerify(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal-user", r.URL.Path)
		assert.Equal(t, "DEMO", r.URL.Query().Get("api_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"alice@example.com","name":"Alice","subscriptionType":"premium"}`))
	}))
	t.Cleanup(server.Close)

	client := NewIdentityClient(server.URL, 5*time.Second)
	identity, err := client.Verify(context.Background(), "DEMO")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice", identity.Name)
	assert.Equal(t, "premium", identity.SubscriptionType)
}

func TestIdentityClientVerifyFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "non-JSON",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write([]byte("nope"))
			},
		},
		{
			name: "missing email",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"name":"Alice"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(tt.handler)
			t.Cleanup(server.Close)

			client := NewIdentityClient(server.URL, time.Second)
			_, err := client.Verify(context.Background(), "BAD")
			assert.Error(t, err)
		})
	}
}
