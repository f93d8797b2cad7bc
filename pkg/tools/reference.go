// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (h *Handler) registerReferenceTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_macro_indicator",
		mcp.WithDescription("Macroeconomic indicator series for a country, e.g. GDP or inflation."),
		mcp.WithString("country", mcp.Required(),
			mcp.Description("ISO 3166 alpha-3 country code, e.g. 'USA'")),
		mcp.WithString("indicator", mcp.Description("Indicator name, e.g. 'gdp_current_usd' (default)")),
	), h.getMacroIndicator)

	s.AddTool(mcp.NewTool("get_insider_transactions",
		mcp.WithDescription("Insider transactions, filterable by symbol and date range."),
		mcp.WithString("ticker", mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows, 1-1000 (default 100)")),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
	), h.getInsiderTransactions)

	s.AddTool(mcp.NewTool("get_historical_market_cap",
		mcp.WithDescription("Historical market capitalization for a ticker."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
	), h.getHistoricalMarketCap)

	s.AddTool(mcp.NewTool("get_user_details",
		mcp.WithDescription("Account information for the active API credential: plan, limits, usage."),
	), h.getUserDetails)
}

func (h *Handler) getMacroIndicator(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Country   string `json:"country"`
		Indicator string `json:"indicator,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if len(args.Country) != 3 {
		return argError("'country' must be an ISO 3166 alpha-3 code, e.g. 'USA'"), nil
	}
	if args.Indicator == "" {
		args.Indicator = "gdp_current_usd"
	}

	params := url.Values{
		"fmt":       {"json"},
		"indicator": {args.Indicator},
	}
	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/macro-indicator/"+args.Country, params)), nil
}

func (h *Handler) getInsiderTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker,omitempty"`
		Limit  int    `json:"limit,omitempty"`
		From   string `json:"from,omitempty"`
		To     string `json:"to,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if args.Limit == 0 {
		args.Limit = 100
	}
	if args.Limit < 1 || args.Limit > 1000 {
		return argError("'limit' must be between 1 and 1000"), nil
	}
	if res := checkDateRange(args.From, args.To); res != nil {
		return res, nil
	}

	params := url.Values{
		"fmt":   {"json"},
		"limit": {strconv.Itoa(args.Limit)},
	}
	if args.Ticker != "" {
		params.Set("code", args.Ticker)
	}
	if args.From != "" {
		params.Set("from", args.From)
	}
	if args.To != "" {
		params.Set("to", args.To)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/insider-transactions", params)), nil
}

func (h *Handler) getHistoricalMarketCap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker"`
		From   string `json:"from,omitempty"`
		To     string `json:"to,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}
	if res := checkDateRange(args.From, args.To); res != nil {
		return res, nil
	}

	params := url.Values{"fmt": {"json"}}
	if args.From != "" {
		params.Set("from", args.From)
	}
	if args.To != "" {
		params.Set("to", args.To)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/historical-market-cap/"+args.Ticker, params)), nil
}

func (h *Handler) getUserDetails(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/user", nil)), nil
}
