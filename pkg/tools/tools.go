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

// Package tools defines the financial-data MCP tool catalog. Every tool is a
// thin wrapper that validates its arguments, builds an upstream URL, and
// returns the upstream response (or a shaped error) verbatim as text.
package tools

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/findata-mcp/pkg/upstream"
)

// Handler binds the tool catalog to an upstream sink. The per-request
// credential travels in the context; the handler itself is stateless.
type Handler struct {
	sink *upstream.Sink
}

// NewHandler creates a tool handler over the given sink.
func NewHandler(sink *upstream.Sink) *Handler {
	return &Handler{sink: sink}
}

// NewMCPServer builds an MCP server with the full tool catalog registered.
func NewMCPServer(name, version string, sink *upstream.Sink) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	NewHandler(sink).Register(mcpServer)
	return mcpServer
}

// Register adds every tool in the catalog to the MCP server.
func (h *Handler) Register(s *server.MCPServer) {
	h.registerPriceTools(s)
	h.registerFundamentalsTools(s)
	h.registerNewsTools(s)
	h.registerMarketTools(s)
	h.registerCalendarTools(s)
	h.registerReferenceTools(s)
}

var dateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// validDate reports whether s is a real calendar date in YYYY-MM-DD form.
func validDate(s string) bool {
	if !dateRE.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// argError shapes an argument validation failure as a tool error result.
func argError(format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...))
}

// checkDateRange validates optional from/to dates and their ordering.
func checkDateRange(from, to string) *mcp.CallToolResult {
	if from != "" && !validDate(from) {
		return argError("'from' must be a date in YYYY-MM-DD form, got %q", from)
	}
	if to != "" && !validDate(to) {
		return argError("'to' must be a date in YYYY-MM-DD form, got %q", to)
	}
	if from != "" && to != "" && from > to {
		return argError("'from' (%s) cannot be after 'to' (%s)", from, to)
	}
	return nil
}
