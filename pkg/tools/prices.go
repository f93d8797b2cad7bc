// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (h *Handler) registerPriceTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_historical_stock_prices",
		mcp.WithDescription("End-of-day historical price data for a ticker in SYMBOL.EXCHANGE form."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format, e.g. 'AAPL.US'")),
		mcp.WithString("start_date", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("end_date", mcp.Description("End date (YYYY-MM-DD)")),
		mcp.WithString("period", mcp.Description("Aggregation period: d, w, or m (default d)")),
		mcp.WithString("order", mcp.Description("Sort order: a (ascending) or d (descending)")),
		mcp.WithString("filter", mcp.Description("Single-value filter, e.g. 'last_close'")),
	), h.getHistoricalPrices)

	s.AddTool(mcp.NewTool("get_intraday_historical_data",
		mcp.WithDescription("Intraday historical price bars for a ticker."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
		mcp.WithString("interval", mcp.Description("Bar interval: 1m, 5m, or 1h (default 5m)")),
		mcp.WithNumber("from_ts", mcp.Description("Start of range as a unix timestamp")),
		mcp.WithNumber("to_ts", mcp.Description("End of range as a unix timestamp")),
	), h.getIntradayData)

	s.AddTool(mcp.NewTool("get_live_price_data",
		mcp.WithDescription("Delayed live price for a ticker, optionally with extra symbols."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Primary symbol in SYMBOL.EXCHANGE format")),
		mcp.WithString("extra_tickers", mcp.Description("Comma-separated additional symbols")),
	), h.getLivePrice)

	s.AddTool(mcp.NewTool("get_current_stock_price",
		mcp.WithDescription("Latest price for a single ticker."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
	), h.getCurrentPrice)
}

func (h *Handler) getHistoricalPrices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker    string `json:"ticker"`
		StartDate string `json:"start_date,omitempty"`
		EndDate   string `json:"end_date,omitempty"`
		Period    string `json:"period,omitempty"`
		Order     string `json:"order,omitempty"`
		Filter    string `json:"filter,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if args.Ticker == "" {
		return argError("'ticker' is required, e.g. 'AAPL.US'"), nil
	}
	if args.Period == "" {
		args.Period = "d"
	}
	if !oneOf(args.Period, "d", "w", "m") {
		return argError("'period' must be one of d, w, m"), nil
	}
	if args.Order == "" {
		args.Order = "a"
	}
	if !oneOf(args.Order, "a", "d") {
		return argError("'order' must be a or d"), nil
	}
	if res := checkDateRange(args.StartDate, args.EndDate); res != nil {
		return res, nil
	}

	params := url.Values{
		"period": {args.Period},
		"order":  {args.Order},
		"fmt":    {"json"},
	}
	if args.StartDate != "" {
		params.Set("from", args.StartDate)
	}
	if args.EndDate != "" {
		params.Set("to", args.EndDate)
	}
	if args.Filter != "" {
		params.Set("filter", args.Filter)
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/eod/"+args.Ticker, params)), nil
}

func (h *Handler) getIntradayData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker   string `json:"ticker"`
		Interval string `json:"interval,omitempty"`
		FromTS   int64  `json:"from_ts,omitempty"`
		ToTS     int64  `json:"to_ts,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}

	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}
	if args.Interval == "" {
		args.Interval = "5m"
	}
	if !oneOf(args.Interval, "1m", "5m", "1h") {
		return argError("'interval' must be one of 1m, 5m, 1h"), nil
	}

	params := url.Values{
		"interval": {args.Interval},
		"fmt":      {"json"},
	}
	if args.FromTS > 0 {
		params.Set("from", strconv.FormatInt(args.FromTS, 10))
	}
	if args.ToTS > 0 {
		params.Set("to", strconv.FormatInt(args.ToTS, 10))
	}

	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/intraday/"+args.Ticker, params)), nil
}

func (h *Handler) getLivePrice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker       string `json:"ticker"`
		ExtraTickers string `json:"extra_tickers,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}

	params := url.Values{"fmt": {"json"}}
	if extras := strings.TrimSpace(args.ExtraTickers); extras != "" {
		params.Set("s", extras)
	}
	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/real-time/"+args.Ticker, params)), nil
}

func (h *Handler) getCurrentPrice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}
	return mcp.NewToolResultText(h.sink.FetchPath(ctx, "/real-time/"+args.Ticker, url.Values{"fmt": {"json"}})), nil
}
