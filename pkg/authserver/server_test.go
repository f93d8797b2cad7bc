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

package authserver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/findata-mcp/pkg/auth"
	"github.com/stacklok/findata-mcp/pkg/authserver/storage"
	"github.com/stacklok/findata-mcp/pkg/config"
	"github.com/stacklok/findata-mcp/pkg/tokenstore"
	"github.com/stacklok/findata-mcp/pkg/upstream"
)

const (
	testJWTSecret  = "test-jwt-secret"
	testCredential = "DEMO-API-KEY"
	testEmail      = "alice@example.com"
)

type fakeIdentity struct {
	identity *upstream.Identity
	err      error
	calls    int
}

func (f *fakeIdentity) Verify(_ context.Context, _ string) (*upstream.Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeResolver struct {
	clients map[string]*storage.Client
	calls   int
}

func (f *fakeResolver) Resolve(_ context.Context, clientID string) (*storage.Client, error) {
	f.calls++
	client, ok := f.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: no metadata document", storage.ErrNotFound)
	}
	return client, nil
}

type testEnv struct {
	ts       *httptest.Server
	store    *storage.Storage
	codec    *auth.Codec
	identity *fakeIdentity
	resolver *fakeResolver
	cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		ResourcePath:       config.OAuthMountPath,
		JWTSecret:          testJWTSecret,
		JWTAlgorithm:       "HS256",
		SessionSecret:      "test-session-secret",
		AccessTokenExpires: time.Hour,
		AuthCodeExpires:    10 * time.Minute,
		DefaultScope:       "full-access",
	}

	codec, err := auth.NewCodec(cfg.JWTSecret)
	require.NoError(t, err)

	backend := tokenstore.NewMemoryStore()
	t.Cleanup(func() { _ = backend.Close() })
	store := storage.New(backend)

	identity := &fakeIdentity{identity: &upstream.Identity{
		Email:            testEmail,
		Name:             "Alice",
		SubscriptionType: "premium",
	}}
	resolver := &fakeResolver{clients: map[string]*storage.Client{}}

	srv := New(cfg, store, codec, resolver, identity)
	router := chi.NewRouter()
	srv.Routes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: store, codec: codec, identity: identity, resolver: resolver, cfg: cfg}
}

// newBrowser returns a client that keeps cookies and surfaces redirects
// instead of following them.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) registerClient(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(e.ts.URL+"/register", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) login(t *testing.T, browser *http.Client, credential string) *http.Response {
	t.Helper()
	resp, err := browser.PostForm(e.ts.URL+"/login", url.Values{"api_key": {credential}})
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (e *testEnv) resource() string {
	return e.ts.URL + config.OAuthMountPath
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// authorizeCode runs the authorize request for a logged-in browser and
// returns the issued code and echoed state.
func (e *testEnv) authorizeCode(t *testing.T, browser *http.Client, params url.Values) (string, string) {
	t.Helper()
	resp, err := browser.Get(e.ts.URL + "/authorize?" + params.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Empty(t, location.Query().Get("error"),
		"authorize redirected with error: %s", location.Query().Get("error_description"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code, location.Query().Get("state")
}

func TestRegisterDefaults(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})

	assert.NotEmpty(t, out["client_id"])
	assert.NotEmpty(t, out["client_secret"])
	assert.EqualValues(t, 0, out["client_secret_expires_at"])
	assert.Equal(t, "MCP Client", out["client_name"])
	assert.Equal(t, "client_secret_post", out["token_endpoint_auth_method"])
	assert.EqualValues(t, []any{"authorization_code"}, out["grant_types"])
	assert.EqualValues(t, []any{"code"}, out["response_types"])
	assert.NotZero(t, out["client_id_issued_at"])
}

func TestRegisterPublicClientHasNoSecret(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	out := env.registerClient(t, map[string]any{
		"client_name":                "cli",
		"redirect_uris":              []string{"http://127.0.0.1:9999/cb"},
		"token_endpoint_auth_method": "none",
	})

	assert.Equal(t, "none", out["token_endpoint_auth_method"])
	_, hasSecret := out["client_secret"]
	assert.False(t, hasSecret)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"not JSON", "not json"},
		{"no redirect URIs", `{"client_name":"x"}`},
		{"empty redirect URIs", `{"redirect_uris":[]}`},
		{"non-http redirect URI", `{"redirect_uris":["javascript:alert(1)"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Post(env.ts.URL+"/register", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestLoginVerifiesAndStoresUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)

	resp := env.login(t, browser, testCredential)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, 1, env.identity.calls)

	user, err := env.store.GetUser(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, testCredential, user.UpstreamCredential)
	assert.Equal(t, "premium", user.SubscriptionType)

	// A second login with the same credential takes the index fast path.
	resp = env.login(t, newBrowser(t), testCredential)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 1, env.identity.calls)
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		credential  string
		identityErr error
		wantError   string
	}{
		{
			name:      "empty credential",
			wantError: "API key is required",
		},
		{
			name:        "verification failed",
			credential:  "BAD",
			identityErr: fmt.Errorf("upstream said no"),
			wantError:   "Invalid API key or service unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.identity.err = tt.identityErr

			resp := env.login(t, newBrowser(t), tt.credential)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)

			location, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "/login", location.Path)
			assert.Equal(t, tt.wantError, location.Query().Get("error"))
		})
	}
}

func TestLoginPageShowsError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/login?error=" + url.QueryEscape("Invalid API key or service unavailable"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "Invalid API key or service unavailable")
	assert.Contains(t, body.String(), `name="api_key"`)
}

func TestAuthorizeRedirectsAnonymousToLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})
	clientID := out["client_id"].(string)

	resp, err := browser.Get(env.ts.URL + "/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"https://client.example.com/cb"},
	}.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// After logging in the browser is sent back to the authorize URL.
	loginResp := env.login(t, browser, testCredential)
	require.Equal(t, http.StatusSeeOther, loginResp.StatusCode)
	returnTo := loginResp.Header.Get("Location")
	assert.Contains(t, returnTo, "/authorize?")
	assert.Contains(t, returnTo, "client_id="+url.QueryEscape(clientID))
}

func TestAuthorizeUnknownClientRendersErrorPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	resp, err := browser.Get(env.ts.URL + "/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"does-not-exist"},
		"redirect_uri":  {"https://attacker.example.com/cb"},
	}.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	// Never redirect to an unverified redirect_uri.
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Empty(t, resp.Header.Get("Location"))
}

func TestAuthorizeRedirectURIMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})

	resp, err := browser.Get(env.ts.URL + "/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {out["client_id"].(string)},
		"redirect_uri":  {"https://client.example.com/other"},
		"state":         {"xyz"},
	}.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_request", location.Query().Get("error"))
	assert.Equal(t, "xyz", location.Query().Get("state"))
}

func TestAuthorizeRejectsNonS256PKCE(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})

	resp, err := browser.Get(env.ts.URL + "/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {out["client_id"].(string)},
		"redirect_uri":          {"https://client.example.com/cb"},
		"code_challenge":        {"abc"},
		"code_challenge_method": {"plain"},
	}.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_request", location.Query().Get("error"))
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"client_name":   "flow test",
		"redirect_uris": []string{"https://client.example.com/cb"},
	})
	clientID := out["client_id"].(string)
	clientSecret := out["client_secret"].(string)

	verifier := "correct-horse-battery-staple-0123456789abcdef"
	code, state := env.authorizeCode(t, browser, url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {"https://client.example.com/cb"},
		"state":                 {"state-1"},
		"scope":                 {"read:eod read:news"},
		"code_challenge":        {s256(verifier)},
		"code_challenge_method": {"S256"},
	})
	assert.Equal(t, "state-1", state)

	resp, err := http.PostForm(env.ts.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://client.example.com/cb"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code_verifier": {verifier},
		"resource":      {env.resource()},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenResp))
	assert.Equal(t, "Bearer", tokenResp.TokenType)
	assert.Equal(t, 3600, tokenResp.ExpiresIn)
	assert.Equal(t, "read:eod read:news", tokenResp.Scope)

	claims, err := env.codec.Verify(tokenResp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testEmail, claims.Subject)
	assert.Equal(t, clientID, claims.ClientID)
	assert.Contains(t, []string(claims.Audience), env.resource())

	record, err := env.store.GetAccessToken(context.Background(), tokenResp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testEmail, record.UserID)
}

func TestTokenCodeReplayRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})
	clientID := out["client_id"].(string)
	clientSecret := out["client_secret"].(string)

	code, _ := env.authorizeCode(t, browser, url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"https://client.example.com/cb"},
	})

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://client.example.com/cb"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	first, err := http.PostForm(env.ts.URL+"/token", form)
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.PostForm(env.ts.URL+"/token", form)
	require.NoError(t, err)
	defer second.Body.Close()
	require.Equal(t, http.StatusBadRequest, second.StatusCode)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(second.Body).Decode(&errResp))
	assert.Equal(t, "invalid_grant", errResp["error"])
}

func TestTokenConcurrentExchangeSingleWinner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})
	clientID := out["client_id"].(string)
	clientSecret := out["client_secret"].(string)

	code, _ := env.authorizeCode(t, browser, url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"https://client.example.com/cb"},
	})

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://client.example.com/cb"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	// All exchanges present the same code at once; the consume must let
	// exactly one through.
	const attempts = 8
	type outcome struct {
		status   int
		oauthErr string
	}
	results := make(chan outcome, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := http.PostForm(env.ts.URL+"/token", form)
			if err != nil {
				results <- outcome{status: -1, oauthErr: err.Error()}
				return
			}
			defer resp.Body.Close()
			var body map[string]any
			_ = json.NewDecoder(resp.Body).Decode(&body)
			oauthErr, _ := body["error"].(string)
			results <- outcome{status: resp.StatusCode, oauthErr: oauthErr}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var won, rejected int
	for res := range results {
		switch res.status {
		case http.StatusOK:
			won++
		case http.StatusBadRequest:
			assert.Equal(t, "invalid_grant", res.oauthErr)
			rejected++
		default:
			t.Fatalf("unexpected token response: status=%d error=%q", res.status, res.oauthErr)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, rejected)
}

func TestTokenErrorCases(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})
	clientID := out["client_id"].(string)
	clientSecret := out["client_secret"].(string)

	verifier := "another-sufficiently-long-verifier-value-42"
	newCode := func(withPKCE bool) string {
		params := url.Values{
			"response_type": {"code"},
			"client_id":     {clientID},
			"redirect_uri":  {"https://client.example.com/cb"},
		}
		if withPKCE {
			params.Set("code_challenge", s256(verifier))
			params.Set("code_challenge_method", "S256")
		}
		code, _ := env.authorizeCode(t, browser, params)
		return code
	}

	tests := []struct {
		name       string
		form       func() url.Values
		wantStatus int
		wantError  string
	}{
		{
			name: "wrong client secret",
			form: func() url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {newCode(false)},
					"redirect_uri":  {"https://client.example.com/cb"},
					"client_id":     {clientID},
					"client_secret": {"wrong"},
				}
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name: "redirect URI mismatch",
			form: func() url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {newCode(false)},
					"redirect_uri":  {"https://client.example.com/other"},
					"client_id":     {clientID},
					"client_secret": {clientSecret},
				}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name: "resource mismatch",
			form: func() url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {newCode(false)},
					"redirect_uri":  {"https://client.example.com/cb"},
					"client_id":     {clientID},
					"client_secret": {clientSecret},
					"resource":      {"https://other.example.com/v2/mcp"},
				}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_target",
		},
		{
			name: "missing code verifier",
			form: func() url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {newCode(true)},
					"redirect_uri":  {"https://client.example.com/cb"},
					"client_id":     {clientID},
					"client_secret": {clientSecret},
				}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name: "wrong code verifier",
			form: func() url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {newCode(true)},
					"redirect_uri":  {"https://client.example.com/cb"},
					"client_id":     {clientID},
					"client_secret": {clientSecret},
					"code_verifier": {"not-the-right-verifier-at-all-000000000000"},
				}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name: "unsupported grant type",
			form: func() url.Values {
				return url.Values{
					"grant_type": {"client_credentials"},
					"client_id":  {clientID},
				}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.PostForm(env.ts.URL+"/token", tt.form())
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var errResp map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.Equal(t, tt.wantError, errResp["error"])
		})
	}
}

func TestTokenBasicClientAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris":              []string{"https://client.example.com/cb"},
		"token_endpoint_auth_method": "client_secret_basic",
	})
	clientID := out["client_id"].(string)
	clientSecret := out["client_secret"].(string)

	code, _ := env.authorizeCode(t, browser, url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"https://client.example.com/cb"},
	})

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://client.example.com/cb"},
	}
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetadataDocumentClientFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	clientID := "https://client.example.test/oauth/metadata.json"
	env.resolver.clients[clientID] = &storage.Client{
		ClientID:                clientID,
		RedirectURIs:            []string{"https://client.example.test/cb"},
		ClientName:              "Metadata Client",
		TokenEndpointAuthMethod: storage.AuthMethodNone,
	}

	verifier := "metadata-client-verifier-0123456789abcdefghij"
	code, _ := env.authorizeCode(t, browser, url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {"https://client.example.test/cb"},
		"code_challenge":        {s256(verifier)},
		"code_challenge_method": {"S256"},
	})
	assert.Equal(t, 1, env.resolver.calls)

	// Public client: no secret, PKCE carries the proof.
	resp, err := http.PostForm(env.ts.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://client.example.test/cb"},
		"client_id":     {clientID},
		"code_verifier": {verifier},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntrospect(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	browser := newBrowser(t)
	env.login(t, browser, testCredential)

	out := env.registerClient(t, map[string]any{
		"redirect_uris": []string{"https://client.example.com/cb"},
	})
	clientID := out["client_id"].(string)
	clientSecret := out["client_secret"].(string)

	code, _ := env.authorizeCode(t, browser, url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"https://client.example.com/cb"},
	})
	resp, err := http.PostForm(env.ts.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://client.example.com/cb"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	})
	require.NoError(t, err)
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenResp))
	resp.Body.Close()

	introspect := func(token string) map[string]any {
		resp, err := http.PostForm(env.ts.URL+"/introspect", url.Values{"token": {token}})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	active := introspect(tokenResp.AccessToken)
	assert.Equal(t, true, active["active"])
	assert.Equal(t, testEmail, active["sub"])
	assert.Equal(t, clientID, active["client_id"])
	assert.Equal(t, env.resource(), active["aud"])
	assert.Equal(t, "full-access", active["scope"])
	assert.NotZero(t, active["exp"])
	assert.NotZero(t, active["iat"])

	// Garbage token.
	assert.Equal(t, false, introspect("garbage")["active"])

	// Valid signature but no live store record (revoked).
	require.NoError(t, env.store.DeleteAccessToken(context.Background(), tokenResp.AccessToken))
	assert.Equal(t, false, introspect(tokenResp.AccessToken)["active"])

	// Missing token parameter.
	assert.Equal(t, false, introspect("")["active"])
}

func TestASMetadata(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, env.ts.URL, meta["issuer"])
	assert.Equal(t, env.ts.URL+"/authorize", meta["authorization_endpoint"])
	assert.Equal(t, env.ts.URL+"/token", meta["token_endpoint"])
	assert.Equal(t, env.ts.URL+"/register", meta["registration_endpoint"])
	assert.EqualValues(t, []any{"S256"}, meta["code_challenge_methods_supported"])
	assert.Equal(t, true, meta["client_id_metadata_document_supported"])
	assert.Len(t, meta["scopes_supported"], len(scopesSupported))
}

func TestProtectedResourceMetadata(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		path         string
		wantResource string
	}{
		{"/.well-known/oauth-protected-resource", env.resource()},
		{"/.well-known/oauth-protected-resource" + config.OAuthMountPath, env.resource()},
		{"/.well-known/oauth-protected-resource" + config.LegacyMountPath, env.ts.URL + config.LegacyMountPath},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Get(env.ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var meta map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
			assert.Equal(t, tt.wantResource, meta["resource"])
			assert.EqualValues(t, []any{env.ts.URL}, meta["authorization_servers"])
			assert.Equal(t, env.ts.URL+"/", meta["resource_documentation"])
		})
	}
}
