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

func (h *Handler) registerMarketTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_stock_screener_data",
		mcp.WithDescription("Screen stocks by filters such as market cap, sector, or exchange."),
		mcp.WithString("filters", mcp.Description(
			`JSON array of [field, operation, value] triples, e.g. [["market_capitalization",">",1000000000]]`)),
		mcp.WithString("sort", mcp.Description("Sort expression, e.g. 'market_capitalization.desc'")),
		mcp.WithNumber("limit", mcp.Description("Maximum results, 1-100 (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset (default 0)")),
		mcp.WithString("signals", mcp.Description("Comma-separated signal names, e.g. 'bookvalue_neg'")),
	), h.getScreener)

	s.AddTool(mcp.NewTool("get_stocks_from_search",
		mcp.WithDescription("Search instruments by name, ticker, or ISIN."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results, 1-500 (default 15)")),
		mcp.WithBoolean("bonds_only", mcp.Description("Restrict results to bonds")),
		mcp.WithString("exchange", mcp.Description("Restrict results to one exchange code")),
	), h.searchStocks)

	s.AddTool(mcp.NewTool("get_exchanges_list",
		mcp.WithDescription("List all supported exchanges with codes and countries."),
	), h.getExchangesList)

	s.AddTool(mcp.NewTool("get_exchange_tickers",
		mcp.WithDescription("List the symbols traded on an exchange."),
		mcp.WithString("exchange_code", mcp.Required(),
			mcp.Description("Exchange code, e.g. 'US' or 'LSE'")),
		mcp.WithBoolean("delisted", mcp.Description("Include delisted symbols")),
		mcp.WithString("type", mcp.Description("Instrument type filter, e.g. 'common_stock'")),
	), h.getExchangeTickers)
}

func (h *Handler) getScreener(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Filters string `json:"filters,omitempty"`
		Sort    string `json:"sort,omitempty"`
		Limit   int    `json:"limit,omitempty"`
		Offset  int    `json:"offset,omitempty"`
		Signals string `json:"signals,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if args.Limit == 0 {
		args.Limit = 50
	}
	if args.Limit < 1 || args.Limit > 100 {
		return argError("'limit' must be between 1 and 100"), nil
	}
	if args.Offset < 0 {
		return argError("'offset' cannot be negative"), nil
	}

	params := url.Values{
		"limit":  {strconv.Itoa(args.Limit)},
		"offset": {strconv.Itoa(args.Offset)},
	}
	if args.Filters != "" {
		params.Set("filters", args.Filters)
	}
	if args.Sort != "" {
		params.Set("sort", args.Sort)
	}
	if args.Signals != "" {
		params.Set("signals", args.Signals)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/screener", params)), nil
}

func (h *Handler) searchStocks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Query     string `json:"query"`
		Limit     int    `json:"limit,omitempty"`
		BondsOnly bool   `json:"bonds_only,omitempty"`
		Exchange  string `json:"exchange,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if args.Query == "" {
		return argError("'query' is required"), nil
	}
	if args.Limit == 0 {
		args.Limit = 15
	}
	if args.Limit < 1 || args.Limit > 500 {
		return argError("'limit' must be between 1 and 500"), nil
	}

	params := url.Values{
		"fmt":   {"json"},
		"limit": {strconv.Itoa(args.Limit)},
	}
	if args.BondsOnly {
		params.Set("bonds_only", "1")
	}
	if args.Exchange != "" {
		params.Set("exchange", args.Exchange)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/search/"+url.PathEscape(args.Query), params)), nil
}

func (h *Handler) getExchangesList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/exchanges-list/", url.Values{"fmt": {"json"}})), nil
}

func (h *Handler) getExchangeTickers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ExchangeCode string `json:"exchange_code"`
		Delisted     bool   `json:"delisted,omitempty"`
		Type         string `json:"type,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.ExchangeCode == "" {
		return argError("'exchange_code' is required, e.g. 'US'"), nil
	}

	params := url.Values{"fmt": {"json"}}
	if args.Delisted {
		params.Set("delisted", "1")
	}
	if args.Type != "" {
		params.Set("type", args.Type)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/exchange-symbol-list/"+args.ExchangeCode, params)), nil
}
