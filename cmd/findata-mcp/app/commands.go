// Package app provides the entry point for the findata-mcp command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/findata-mcp/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "findata-mcp",
	DisableAutoGenTag: true,
	Short:             "findata-mcp exposes a financial-data API as MCP tools behind OAuth 2.1",
	Long: `findata-mcp is an HTTP gateway that fronts an upstream financial-data API
and exposes its read operations as MCP (Model Context Protocol) tools.

It embeds an OAuth 2.1 authorization server (dynamic client registration,
authorization code grant with PKCE, introspection, and RFC 8414/9728
discovery) and serves two MCP mounts: a legacy mount that accepts raw API
credentials, and a protected mount that requires bearer tokens bound to it.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the findata-mcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
