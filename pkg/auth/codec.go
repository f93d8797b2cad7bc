// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the registered and private claims carried by gateway access
// tokens. Scope is the space-separated scope string per RFC 6749.
type Claims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// Codec issues and verifies compact HS256-signed tokens. It is stateless;
// possession of a token with a valid signature is necessary but not
// sufficient for authorization, which additionally requires a live store
// entry.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec creates a codec signing with secret on behalf of issuer.
// Issuer may be empty when the canonical base URL is derived per request;
// in that case the issuer is set on each IssueParams.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// IssueParams describes a token to mint.
type IssueParams struct {
	Issuer   string
	Subject  string
	Audience string
	ClientID string
	Scope    string
	Lifetime time.Duration
}

// Issue mints a signed token and returns it with its claims. The jti is a
// fresh UUID so otherwise identical tokens remain distinct.
func (c *Codec) Issue(params IssueParams) (string, *Claims, error) {
	if params.Subject == "" {
		return "", nil, fmt.Errorf("subject is required")
	}
	now := time.Now()
	claims := &Claims{
		ClientID: params.ClientID,
		Scope:    params.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    params.Issuer,
			Subject:   params.Subject,
			Audience:  jwt.ClaimStrings{params.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(params.Lifetime)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature and expiry of a compact token and returns its
// claims. Audience is deliberately not validated here: its form may be a
// string or a list and matching is trailing-slash tolerant, so callers use
// AudienceMatches against the expected resource URL.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(_ *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
