package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/findata-mcp/pkg/config"
	"github.com/stacklok/findata-mcp/pkg/gateway"
	"github.com/stacklok/findata-mcp/pkg/logger"
)

// newServeCommand creates the 'serve' subcommand
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the HTTP gateway: the OAuth 2.1 authorization server at the root
origin, the legacy MCP mount at /v1/mcp, and the protected MCP mount at
/v2/mcp. Configuration is read from the environment; see JWT_SECRET,
FINDATA_API_BASE, and the OAUTH_TOKEN_* variables.`,
		RunE: serveCmdFunc,
	}
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	gw, err := gateway.New(ctx, cfg)
	if err != nil {
		return err
	}

	serveErr, err := gw.Start(ctx)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
			return nil
		}
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down gateway...")
		return gw.Stop(context.Background())
	})

	return group.Wait()
}
