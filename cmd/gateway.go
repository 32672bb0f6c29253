// File: cmd/gateway.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/internal/observability"
	"github.com/veriform/veriform-cli/internal/proxy"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the local rotating proxy gateway.",
	Long: `Starts a forward proxy on the configured gateway address that rotates
every outbound connection across the configured upstream pool. Point the
browser (or any other client) at it to spread traffic over the upstreams.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Proxy.Enabled {
		return fmt.Errorf("%w: proxy.enabled must be set with at least one endpoint", errInvalidArguments)
	}

	logger := observability.GetLogger()

	pool, err := proxy.NewPool(cfg.Proxy, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pool.HealthCheck(ctx); err != nil {
		logger.Warn("Proxy pool health check reported problems", zap.Error(err))
	}
	if pool.Active() == 0 {
		return fmt.Errorf("no reachable proxy endpoints")
	}

	return proxy.NewGateway(pool, logger).Start(ctx, cfg.Proxy.GatewayAddr)
}
