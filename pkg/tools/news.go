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

func (h *Handler) registerNewsTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_company_news",
		mcp.WithDescription("Financial news articles, filterable by ticker or topic tag."),
		mcp.WithString("ticker", mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
		mcp.WithString("tag", mcp.Description("Topic tag, e.g. 'mergers and acquisitions'")),
		mcp.WithNumber("limit", mcp.Description("Maximum articles to return, 1-1000 (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset (default 0)")),
		mcp.WithString("from", mcp.Description("Earliest publication date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("Latest publication date (YYYY-MM-DD)")),
	), h.getCompanyNews)

	s.AddTool(mcp.NewTool("get_sentiment_data",
		mcp.WithDescription("Aggregated news sentiment for one or more symbols."),
		mcp.WithString("symbols", mcp.Required(),
			mcp.Description("Comma-separated symbols, e.g. 'AAPL.US,MSFT.US'")),
		mcp.WithString("from", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to", mcp.Description("End date (YYYY-MM-DD)")),
	), h.getSentiment)
}

func (h *Handler) getCompanyNews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker,omitempty"`
		Tag    string `json:"tag,omitempty"`
		Limit  int    `json:"limit,omitempty"`
		Offset int    `json:"offset,omitempty"`
		From   string `json:"from,omitempty"`
		To     string `json:"to,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if args.Ticker == "" && args.Tag == "" {
		return argError("one of 'ticker' or 'tag' is required"), nil
	}
	if args.Limit == 0 {
		args.Limit = 50
	}
	if args.Limit < 1 || args.Limit > 1000 {
		return argError("'limit' must be between 1 and 1000"), nil
	}
	if args.Offset < 0 {
		return argError("'offset' cannot be negative"), nil
	}
	if res := checkDateRange(args.From, args.To); res != nil {
		return res, nil
	}

	params := url.Values{
		"fmt":    {"json"},
		"limit":  {strconv.Itoa(args.Limit)},
		"offset": {strconv.Itoa(args.Offset)},
	}
	if args.Ticker != "" {
		params.Set("s", args.Ticker)
	}
	if args.Tag != "" {
		params.Set("t", args.Tag)
	}
	if args.From != "" {
		params.Set("from", args.From)
	}
	if args.To != "" {
		params.Set("to", args.To)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/news", params)), nil
}

func (h *Handler) getSentiment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Symbols string `json:"symbols"`
		From    string `json:"from,omitempty"`
		To      string `json:"to,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Symbols == "" {
		return argError("'symbols' is required"), nil
	}
	if res := checkDateRange(args.From, args.To); res != nil {
		return res, nil
	}

	params := url.Values{
		"fmt": {"json"},
		"s":   {args.Symbols},
	}
	if args.From != "" {
		params.Set("from", args.From)
	}
	if args.To != "" {
		params.Set("to", args.To)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/sentiments", params)), nil
}
