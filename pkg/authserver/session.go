// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// sessionCookieName carries the signed login session that bridges /login to
// /authorize. The session holds no secrets, only the login marker, the user
// identifier, and the pending return-to URL.
const sessionCookieName = "findata_session"

// Session is the per-browser state of the login flow.
type Session struct {
	UserID   string `json:"user_id,omitempty"`
	LoggedIn bool   `json:"logged_in,omitempty"`
	ReturnTo string `json:"oauth_return_to,omitempty"`
}

// sessionCodec signs and verifies session cookies with HMAC-SHA-256.
// Tampered or unparseable cookies yield a fresh empty session.
type sessionCodec struct {
	secret []byte
	// alwaysSecure forces the Secure cookie attribute, set when the
	// canonical external base URL is https.
	alwaysSecure bool
}

func newSessionCodec(secret string, alwaysSecure bool) *sessionCodec {
	return &sessionCodec{secret: []byte(secret), alwaysSecure: alwaysSecure}
}

func (c *sessionCodec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Load returns the session carried by the request, or an empty session when
// the cookie is absent or invalid.
func (c *sessionCodec) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return &Session{}
	}

	payloadPart, sigPart, found := strings.Cut(cookie.Value, ".")
	if !found {
		return &Session{}
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return &Session{}
	}
	if !hmac.Equal([]byte(c.sign(payload)), []byte(sigPart)) {
		return &Session{}
	}

	session := &Session{}
	if err := json.Unmarshal(payload, session); err != nil {
		return &Session{}
	}
	return session
}

// Save writes the session back as a signed cookie. The Secure attribute is
// set when the deployment is known to be https or the request arrived over
// TLS (directly or via a forwarding proxy).
func (c *sessionCodec) Save(w http.ResponseWriter, r *http.Request, session *Session) {
	payload, err := json.Marshal(session)
	if err != nil {
		return
	}
	value := base64.RawURLEncoding.EncodeToString(payload) + "." + c.sign(payload)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.alwaysSecure || requestOverTLS(r),
	})
}

func requestOverTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
