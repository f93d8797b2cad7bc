// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (h *Handler) registerCalendarTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_upcoming_earnings",
		mcp.WithDescription("Earnings calendar: upcoming and historical report dates."),
		mcp.WithString("symbols", mcp.Description("Comma-separated symbols to filter by")),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
	), h.calendarHandler("/calendar/earnings", true))

	s.AddTool(mcp.NewTool("get_upcoming_ipos",
		mcp.WithDescription("IPO calendar for the given date range."),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
	), h.calendarHandler("/calendar/ipos", false))

	s.AddTool(mcp.NewTool("get_upcoming_splits",
		mcp.WithDescription("Stock split calendar for the given date range."),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
	), h.calendarHandler("/calendar/splits", false))

	s.AddTool(mcp.NewTool("get_economic_events",
		mcp.WithDescription("Macroeconomic event calendar, filterable by country and comparison period."),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
		mcp.WithString("country", mcp.Description("ISO 3166 alpha-2 country code, e.g. 'US'")),
		mcp.WithString("comparison", mcp.Description("mom, qoq, or yoy")),
	), h.getEconomicEvents)
}

// calendarHandler builds a handler for the calendar endpoints, which share
// the from/to/symbols shape.
func (h *Handler) calendarHandler(path string, withSymbols bool) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := struct {
			Symbols string `json:"symbols,omitempty"`
			From    string `json:"from,omitempty"`
			To      string `json:"to,omitempty"`
		}{}
		if err := request.BindArguments(&args); err != nil {
			return argError("failed to parse arguments: %v", err), nil
		}
		if res := checkDateRange(args.From, args.To); res != nil {
			return res, nil
		}

		params := url.Values{"fmt": {"json"}}
		if withSymbols && args.Symbols != "" {
			params.Set("symbols", args.Symbols)
		}
		if args.From != "" {
			params.Set("from", args.From)
		}
		if args.To != "" {
			params.Set("to", args.To)
		}

		return mcp.NewToolResultText(h.sink.FetchPath(ctx, path, params)), nil
	}
}

func (h *Handler) getEconomicEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		From       string `json:"from,omitempty"`
		To         string `json:"to,omitempty"`
		Country    string `json:"country,omitempty"`
		Comparison string `json:"comparison,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if res := checkDateRange(args.From, args.To); res != nil {
		return res, nil
	}
	if args.Comparison != "" && !oneOf(args.Comparison, "mom", "qoq", "yoy") {
		return argError("'comparison' must be one of mom, qoq, yoy"), nil
	}

	params := url.Values{"fmt": {"json"}}
	if args.From != "" {
		params.Set("from", args.From)
	}
	if args.To != "" {
		params.Set("to", args.To)
	}
	if args.Country != "" {
		params.Set("country", strings.ToUpper(args.Country))
	}
	if args.Comparison != "" {
		params.Set("comparison", args.Comparison)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/economic-events", params)), nil
}
