// Package main is the entry point for the findata-mcp gateway.
package main

import (
	"os"

	"github.com/stacklok/findata-mcp/cmd/findata-mcp/app"
	"github.com/stacklok/findata-mcp/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
