// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"html"
	"net/http"
)

// handleLoginPage renders the credential entry form. An error message from a
// previous attempt arrives via the error query parameter.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	errMsg := r.URL.Query().Get("error")

	errBlock := ""
	if errMsg != "" {
		errBlock = `<div class="error">` + html.EscapeString(errMsg) + `</div>`
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
  <title>FinData MCP - Sign In</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
           background: #f5f6f8; margin: 0; display: flex; align-items: center;
           justify-content: center; min-height: 100vh; }
    .card { background: #fff; border-radius: 8px; padding: 2.5rem;
            box-shadow: 0 2px 12px rgba(0,0,0,0.08); width: 360px; }
    h1 { font-size: 1.25rem; margin: 0 0 0.5rem; color: #1a1f36; }
    p  { color: #5b6478; font-size: 0.9rem; margin: 0 0 1.5rem; }
    label { display: block; font-size: 0.85rem; color: #1a1f36;
            margin-bottom: 0.4rem; font-weight: 600; }
    input[type="password"] { width: 100%; box-sizing: border-box;
            padding: 0.6rem 0.75rem; border: 1px solid #d4d9e2;
            border-radius: 6px; font-size: 0.95rem; }
    button { width: 100%; margin-top: 1.25rem; padding: 0.65rem;
             background: #2457d6; color: #fff; border: none;
             border-radius: 6px; font-size: 0.95rem; cursor: pointer; }
    button:hover { background: #1c46ad; }
    .error { background: #fdecea; color: #a4281f; border: 1px solid #f5c6c2;
             border-radius: 6px; padding: 0.6rem 0.75rem; font-size: 0.85rem;
             margin-bottom: 1.25rem; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Sign in to FinData MCP</h1>
    <p>Enter your FinData API key to authorize access to market data tools.</p>
    ` + errBlock + `
    <form method="post" action="/login">
      <label for="api_key">API key</label>
      <input type="password" id="api_key" name="api_key" autocomplete="off" autofocus required>
      <button type="submit">Sign in</button>
    </form>
  </div>
</body>
</html>
`))
}
