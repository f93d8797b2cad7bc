// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/findata-mcp/pkg/networking"
)

// Identity is the upstream's view of the account a credential belongs to.
type Identity struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	SubscriptionType string `json:"subscriptionType"`
}

// IdentityClient verifies upstream credentials during login.
type IdentityClient struct {
	baseURL string
	client  networking.HTTPClient
	timeout time.Duration
}

// NewIdentityClient creates a verifier against the upstream API at baseURL.
func NewIdentityClient(baseURL string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Verify checks a credential against the upstream internal-user endpoint
// and returns the account identity. Any failure (timeout, non-200,
// non-JSON, missing email) is returned as an error; the caller surfaces it
// on the login page.
func (c *IdentityClient) Verify(ctx context.Context, credential string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{"api_token": {credential}}
	requestURL := c.baseURL + "/internal-user?" + query.Encode()

	result, err := networking.FetchJSON[Identity](ctx, c.client, requestURL)
	if err != nil {
		return nil, fmt.Errorf("identity verification failed: %w", err)
	}
	if result.Data.Email == "" {
		return nil, fmt.Errorf("identity verification returned no email")
	}
	return &result.Data, nil
}
