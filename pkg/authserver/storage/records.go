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

// Package storage provides the typed record layer of the authorization
// server on top of the tokenstore backends. All hashing of sensitive keys
// (access tokens, upstream credentials) happens here and nowhere else.
package storage

import (
	"time"
)

// Token endpoint authentication methods accepted at registration.
const (
	AuthMethodNone        = "none"
	AuthMethodSecretPost  = "client_secret_post"
	AuthMethodSecretBasic = "client_secret_basic"
)

// Client is a registered OAuth client. The ClientID is either an opaque
// generated identifier or, for discovered clients, the HTTPS URL of the
// client metadata document.
type Client struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	ClientName              string    `json:"client_name,omitempty"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time `json:"created_at"`
}

// IsPublic reports whether the client authenticates without a secret.
// Public clients never carry a secret.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// HasRedirectURI reports whether uri is registered for this client.
// Matching is exact string equality, no normalization.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthCode is a single-use authorization code awaiting exchange at the
// token endpoint.
type AuthCode struct {
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	UserID              string    `json:"user_id"`
	Scopes              []string  `json:"scopes"`
	Resource            string    `json:"resource"`
	ExpiresAt           time.Time `json:"expires_at"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
}

// AccessToken is the stored record of an issued token. The raw token never
// appears here; the store keys access tokens by SHA-256 of the token.
type AccessToken struct {
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// User is an account verified against the upstream identity endpoint,
// keyed by email. UpstreamCredential is the only place the upstream API key
// lives; it must never appear in token claims or logs.
type User struct {
	Email              string    `json:"email"`
	UpstreamCredential string    `json:"upstream_credential"`
	Name               string    `json:"name,omitempty"`
	SubscriptionType   string    `json:"subscription_type,omitempty"`
	Scopes             []string  `json:"scopes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
