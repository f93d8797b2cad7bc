// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveCookie(t *testing.T, codec *sessionCodec, r *http.Request, session *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	codec.Save(rec, r, session)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	codec := newSessionCodec("session-secret", false)

	cookie := saveCookie(t, codec, httptest.NewRequest(http.MethodPost, "/login", nil), &Session{
		UserID:   "alice@example.com",
		LoggedIn: true,
		ReturnTo: "/authorize?client_id=abc",
	})

	r := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	r.AddCookie(cookie)
	session := codec.Load(r)
	assert.Equal(t, "alice@example.com", session.UserID)
	assert.True(t, session.LoggedIn)
	assert.Equal(t, "/authorize?client_id=abc", session.ReturnTo)
}

func TestSessionRejectsTampering(t *testing.T) {
	t.Parallel()
	codec := newSessionCodec("session-secret", false)

	cookie := saveCookie(t, codec, httptest.NewRequest(http.MethodPost, "/login", nil), &Session{
		UserID:   "alice@example.com",
		LoggedIn: true,
	})

	// Swap in a different payload but keep the original signature.
	_, sig, found := strings.Cut(cookie.Value, ".")
	require.True(t, found)
	forged := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"user_id":"mallory@example.com","logged_in":true}`)) + "." + sig
	r := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: forged})
	assert.False(t, codec.Load(r).LoggedIn)

	// A codec keyed differently must not accept the cookie either.
	other := newSessionCodec("different-secret", false)
	r = httptest.NewRequest(http.MethodGet, "/authorize", nil)
	r.AddCookie(cookie)
	assert.False(t, other.Load(r).LoggedIn)
}

func TestSessionCookieSecureFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		alwaysSecure bool
		target       string
		forwarded    string
		wantSecure   bool
	}{
		{"plain http", false, "http://gw.example.com/login", "", false},
		{"https canonical base URL", true, "http://gw.example.com/login", "", true},
		{"direct TLS", false, "https://gw.example.com/login", "", true},
		{"forwarded https", false, "http://gw.example.com/login", "https", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			codec := newSessionCodec("session-secret", tt.alwaysSecure)

			r := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}

			cookie := saveCookie(t, codec, r, &Session{LoggedIn: true})
			assert.Equal(t, tt.wantSecure, cookie.Secure)
			assert.True(t, cookie.HttpOnly)
		})
	}
}
