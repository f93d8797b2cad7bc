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
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/findata-mcp/pkg/auth"
	"github.com/stacklok/findata-mcp/pkg/authserver/storage"
	"github.com/stacklok/findata-mcp/pkg/logger"
)

// registrationRequest is the RFC 7591 dynamic registration body subset we
// accept.
type registrationRequest struct {
	ClientID                string   `json:"client_id,omitempty"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// handleRegister implements dynamic client registration. The secret, when
// one is generated, is returned exactly once.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Expected JSON body")
		return
	}

	clientName := strings.TrimSpace(req.ClientName)
	if clientName == "" {
		clientName = "MCP Client"
	}

	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uris must be a non-empty list")
		return
	}
	redirectURIs := make([]string, 0, len(req.RedirectURIs))
	for _, raw := range req.RedirectURIs {
		uri := strings.TrimSpace(raw)
		if uri == "" {
			continue
		}
		parsed, err := url.Parse(uri)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris must be http(s) URLs")
			return
		}
		redirectURIs = append(redirectURIs, uri)
	}
	if len(redirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "No valid redirect_uris provided")
		return
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = randomToken(16)
	}

	authMethod := strings.TrimSpace(req.TokenEndpointAuthMethod)
	if authMethod == "" {
		authMethod = storage.AuthMethodSecretPost
	}

	var clientSecret string
	if authMethod == storage.AuthMethodNone {
		clientSecret = ""
	} else {
		clientSecret = req.ClientSecret
		if clientSecret == "" {
			clientSecret = randomToken(32)
		}
		if authMethod != storage.AuthMethodSecretPost && authMethod != storage.AuthMethodSecretBasic {
			authMethod = storage.AuthMethodSecretPost
		}
	}

	client := &storage.Client{
		ClientID:                clientID,
		ClientSecret:            clientSecret,
		RedirectURIs:            redirectURIs,
		ClientName:              clientName,
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: authMethod,
		CreatedAt:               time.Now(),
	}
	if err := s.store.PutClient(r.Context(), client); err != nil {
		logger.Errorw("failed to store registered client", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Failed to store client")
		return
	}

	logger.Infow("registered OAuth client",
		"client_name", clientName, "client_id", clientID, "auth_method", authMethod)

	resp := map[string]any{
		"client_id":                  client.ClientID,
		"client_id_issued_at":        client.CreatedAt.Unix(),
		"client_name":                client.ClientName,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
	}
	if client.ClientSecret != "" {
		resp["client_secret"] = client.ClientSecret
		resp["client_secret_expires_at"] = 0
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleLoginSubmit reads the credential from the form, verifies it (via
// the credential index fast path or the upstream identity endpoint), and
// marks the session logged in. Every failure redirects back to /login with
// an error message.
func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectSeeOther(w, r, "/login?error="+url.QueryEscape("API key is required"))
		return
	}
	credential := strings.TrimSpace(r.PostFormValue("api_key"))
	if credential == "" {
		redirectSeeOther(w, r, "/login?error="+url.QueryEscape("API key is required"))
		return
	}

	session := s.sessions.Load(r)
	ctx := r.Context()

	// Fast path: the credential is already indexed.
	existing, err := s.store.GetUserByCredential(ctx, credential)
	if err == nil {
		session.UserID = existing.Email
		session.LoggedIn = true
		returnTo := consumeReturnTo(session)
		s.sessions.Save(w, r, session)
		logger.Infow("user logged in from cached credential", "email", existing.Email)
		redirectSeeOther(w, r, returnTo)
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Errorw("credential index lookup failed", "error", err)
		redirectSeeOther(w, r, "/login?error="+url.QueryEscape("Service unavailable. Please try again"))
		return
	}

	identity, err := s.identity.Verify(ctx, credential)
	if err != nil {
		logger.Debugw("credential verification failed", "error", err)
		redirectSeeOther(w, r, "/login?error="+url.QueryEscape("Invalid API key or service unavailable"))
		return
	}

	user := &storage.User{
		Email:              identity.Email,
		UpstreamCredential: credential,
		Name:               identity.Name,
		SubscriptionType:   identity.SubscriptionType,
		Scopes:             []string{s.cfg.DefaultScope},
	}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		logger.Errorw("failed to store user", "error", err)
		redirectSeeOther(w, r, "/login?error="+url.QueryEscape("Service unavailable. Please try again"))
		return
	}

	session.UserID = identity.Email
	session.LoggedIn = true
	returnTo := consumeReturnTo(session)
	s.sessions.Save(w, r, session)
	logger.Infow("new user verified and logged in", "email", identity.Email)
	redirectSeeOther(w, r, returnTo)
}

// handleAuthorize implements the authorization endpoint of the code grant.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	session := s.sessions.Load(r)
	if !session.LoggedIn {
		session.ReturnTo = s.baseURL(r) + r.URL.RequestURI()
		s.sessions.Save(w, r, session)
		redirectSeeOther(w, r, "/login")
		return
	}

	query := r.URL.Query()
	responseType := query.Get("response_type")
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")
	state := query.Get("state")
	scope := query.Get("scope")
	if scope == "" {
		scope = s.cfg.DefaultScope
	}
	codeChallenge := query.Get("code_challenge")
	codeChallengeMethod := query.Get("code_challenge_method")

	if responseType != "code" {
		if redirectURI != "" && safeRedirectURI(redirectURI) {
			s.oauthErrorRedirect(w, r, redirectURI, "unsupported_response_type",
				"Only response_type=code is supported", state)
			return
		}
		writeErrorPage(w, http.StatusBadRequest, "Only response_type=code is supported")
		return
	}
	if clientID == "" || redirectURI == "" {
		writeErrorPage(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	// An unknown client never gets a redirect: the supplied redirect_uri is
	// untrusted until it is tied to a registered client.
	client, err := s.loadOrDiscoverClient(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeErrorPage(w, http.StatusBadRequest,
				"Unknown client_id (and metadata discovery failed or is unsupported)")
			return
		}
		logger.Errorw("client lookup failed", "error", err)
		writeErrorPage(w, http.StatusInternalServerError, "Internal storage error")
		return
	}

	if !client.HasRedirectURI(redirectURI) {
		s.oauthErrorRedirect(w, r, redirectURI, "invalid_request", "Invalid redirect_uri", state)
		return
	}

	if codeChallengeMethod != "" {
		if codeChallengeMethod != "S256" {
			s.oauthErrorRedirect(w, r, redirectURI, "invalid_request",
				"Only code_challenge_method=S256 is supported", state)
			return
		}
		if codeChallenge == "" {
			s.oauthErrorRedirect(w, r, redirectURI, "invalid_request",
				"code_challenge is required when code_challenge_method is provided", state)
			return
		}
	}

	code := randomToken(32)
	record := &storage.AuthCode{
		ClientID:            client.ClientID,
		RedirectURI:         redirectURI,
		UserID:              session.UserID,
		Scopes:              strings.Fields(scope),
		Resource:            s.resourceURL(r),
		ExpiresAt:           time.Now().Add(s.cfg.AuthCodeExpires),
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	}
	if err := s.store.PutAuthCode(r.Context(), code, record, s.cfg.AuthCodeExpires); err != nil {
		logger.Errorw("failed to store authorization code", "error", err)
		writeErrorPage(w, http.StatusInternalServerError, "Internal storage error")
		return
	}

	logger.Infow("issued authorization code",
		"client_id", client.ClientID, "user", session.UserID, "resource", record.Resource)

	params := map[string]string{"code": code}
	if state != "" {
		params["state"] = state
	}
	redirectSeeOther(w, r, addParams(redirectURI, params))
}

// handleToken implements the token endpoint for the authorization_code
// grant.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Expected form-encoded body")
		return
	}

	grantType := r.PostFormValue("grant_type")
	code := r.PostFormValue("code")
	redirectURI := r.PostFormValue("redirect_uri")
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	codeVerifier := r.PostFormValue("code_verifier")
	requestedResource := r.PostFormValue("resource")

	// HTTP Basic is an alternative carrier for the client credentials.
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		if clientID == "" {
			clientID = basicID
		}
		if clientSecret == "" {
			clientSecret = basicSecret
		}
	}

	if grantType != "authorization_code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "Only authorization_code is supported")
		return
	}
	if code == "" || redirectURI == "" || clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Missing required parameters")
		return
	}

	ctx := r.Context()
	client, err := s.loadOrDiscoverClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Unknown client_id")
			return
		}
		logger.Errorw("client lookup failed", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Internal storage error")
		return
	}

	if !client.IsPublic() {
		if client.ClientSecret == "" || clientSecret == "" || clientSecret != client.ClientSecret {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client credentials")
			return
		}
	}

	authCode, err := s.store.ConsumeAuthCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid or expired authorization code")
			return
		}
		logger.Errorw("authorization code consume failed", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Internal storage error")
		return
	}

	if authCode.ClientID != client.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Authorization code was issued to a different client")
		return
	}
	if authCode.RedirectURI != redirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Redirect URI mismatch")
		return
	}

	expectedResource := s.resourceURL(r)
	resource := requestedResource
	if resource == "" {
		resource = expectedResource
	}
	if resource != expectedResource {
		writeOAuthError(w, http.StatusBadRequest, "invalid_target", "Token is not intended for this resource")
		return
	}

	if authCode.CodeChallenge != "" {
		if authCode.CodeChallengeMethod != "S256" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Unsupported PKCE method")
			return
		}
		if codeVerifier == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code_verifier is required")
			return
		}
		if pkceS256(codeVerifier) != authCode.CodeChallenge {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid code_verifier")
			return
		}
	}

	scope := strings.Join(authCode.Scopes, " ")
	token, claims, err := s.codec.Issue(auth.IssueParams{
		Issuer:   s.baseURL(r),
		Subject:  authCode.UserID,
		Audience: resource,
		ClientID: client.ClientID,
		Scope:    scope,
		Lifetime: s.cfg.AccessTokenExpires,
	})
	if err != nil {
		logger.Errorw("failed to issue access token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Failed to issue token")
		return
	}

	record := &storage.AccessToken{
		ClientID:  client.ClientID,
		UserID:    authCode.UserID,
		Scopes:    authCode.Scopes,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.store.PutAccessToken(ctx, token, record, s.cfg.AccessTokenExpires); err != nil {
		logger.Errorw("failed to store access token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Internal storage error")
		return
	}

	logger.Infow("issued access token",
		"user", authCode.UserID, "client_id", client.ClientID, "aud", resource)

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.AccessTokenExpires.Seconds()),
		"scope":        scope,
	})
}

// handleIntrospect implements RFC 7662 introspection. A token is active
// only while its signature verifies, it is unexpired, and its store record
// is still live.
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	inactive := func() {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
	}

	if err := r.ParseForm(); err != nil {
		inactive()
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		inactive()
		return
	}

	claims, err := s.codec.Verify(token)
	if err != nil {
		inactive()
		return
	}

	if _, err := s.store.GetAccessToken(r.Context(), token); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Errorw("introspection token lookup failed", "error", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "Internal storage error")
			return
		}
		inactive()
		return
	}

	var aud any
	if len(claims.Audience) == 1 {
		aud = claims.Audience[0]
	} else {
		aud = []string(claims.Audience)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    true,
		"iss":       claims.Issuer,
		"sub":       claims.Subject,
		"aud":       aud,
		"client_id": claims.ClientID,
		"scope":     claims.Scope,
		"exp":       claims.ExpiresAt.Unix(),
		"iat":       claims.IssuedAt.Unix(),
	})
}

// consumeReturnTo pops the pending return-to URL off the session,
// defaulting to the root.
func consumeReturnTo(session *Session) string {
	returnTo := session.ReturnTo
	session.ReturnTo = ""
	if returnTo == "" {
		returnTo = "/"
	}
	return returnTo
}

func redirectSeeOther(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// oauthErrorRedirect sends the user agent back to the client's redirect URI
// with standard error parameters, or renders an error page when the URI is
// not http(s)-safe.
func (s *Server) oauthErrorRedirect(w http.ResponseWriter, r *http.Request, redirectURI, code, description, state string) {
	if !safeRedirectURI(redirectURI) {
		writeErrorPage(w, http.StatusBadRequest, description)
		return
	}
	params := map[string]string{
		"error":             code,
		"error_description": description,
	}
	if state != "" {
		params["state"] = state
	}
	redirectSeeOther(w, r, addParams(redirectURI, params))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOAuthError writes an RFC 6749 error response body.
func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeErrorPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(
		"<!DOCTYPE html><html><head><title>Authorization Error</title></head><body>" +
			"<h2>Authorization Error</h2><p>" + html.EscapeString(message) + "</p>" +
			"</body></html>"))
}
