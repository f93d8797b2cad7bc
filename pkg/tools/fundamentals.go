// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (h *Handler) registerFundamentalsTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_fundamentals_data",
		mcp.WithDescription("Full fundamentals document for a ticker: general info, highlights, financials."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
	), h.getFundamentals)

	s.AddTool(mcp.NewTool("get_balance_sheets",
		mcp.WithDescription("Balance sheet statements extracted from the fundamentals document."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
		mcp.WithString("period", mcp.Description("yearly or quarterly (default yearly)")),
	), h.getBalanceSheets)

	s.AddTool(mcp.NewTool("get_cash_flow_statements",
		mcp.WithDescription("Cash flow statements extracted from the fundamentals document."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
		mcp.WithString("period", mcp.Description("yearly or quarterly (default yearly)")),
	), h.getCashFlowStatements)

	s.AddTool(mcp.NewTool("get_earnings_trends",
		mcp.WithDescription("Earnings trend estimates from the fundamentals document."),
		mcp.WithString("ticker", mcp.Required(),
			mcp.Description("Symbol in SYMBOL.EXCHANGE format")),
	), h.getEarningsTrends)
}

func (h *Handler) getFundamentals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}
	return mcp.NewToolResultText(h.fetchFundamentals(ctx, args.Ticker)), nil
}

func (h *Handler) getBalanceSheets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.financialsSection(ctx, request, "Balance_Sheet")
}

func (h *Handler) getCashFlowStatements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.financialsSection(ctx, request, "Cash_Flow")
}

func (h *Handler) getEarningsTrends(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}

	body := h.fetchFundamentals(ctx, args.Ticker)
	section := extractSection(body, "Earnings", "Trend")
	return mcp.NewToolResultText(section), nil
}

func (h *Handler) fetchFundamentals(ctx context.Context, ticker string) string {
	return h.sink.FetchPath(ctx, "/fundamentals/"+ticker, url.Values{"fmt": {"json"}})
}

// financialsSection fetches fundamentals and narrows the response to one
// statement type for the requested period.
func (h *Handler) financialsSection(ctx context.Context, request mcp.CallToolRequest, statement string) (*mcp.CallToolResult, error) {
	args := struct {
		Ticker string `json:"ticker"`
		Period string `json:"period,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return argError("failed to parse arguments: %v", err), nil
	}
	if args.Ticker == "" {
		return argError("'ticker' is required"), nil
	}
	if args.Period == "" {
		args.Period = "yearly"
	}
	if !oneOf(args.Period, "yearly", "quarterly") {
		return argError("'period' must be yearly or quarterly"), nil
	}

	body := h.fetchFundamentals(ctx, args.Ticker)
	section := extractSection(body, "Financials", statement, args.Period)
	return mcp.NewToolResultText(section), nil
}

// extractSection walks a nested JSON object along the given keys and returns
// the sub-document re-encoded as JSON. If the path does not exist, or the
// body is not a JSON object (an upstream error for instance), the body is
// returned unchanged so the caller still sees what upstream said.
func extractSection(body string, path ...string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return body
	}
	var node any = doc
	for _, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return body
		}
		node, ok = obj[key]
		if !ok {
			return body
		}
	}
	out, err := json.Marshal(node)
	if err != nil {
		return body
	}
	return string(out)
}
