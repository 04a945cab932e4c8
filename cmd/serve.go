// File: cmd/serve.go
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/internal/browser"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
	"github.com/xkilldash9x/scalpel-dispatch/internal/llmclient"
	"github.com/xkilldash9x/scalpel-dispatch/internal/metrics"
	"github.com/xkilldash9x/scalpel-dispatch/internal/observability"
	"github.com/xkilldash9x/scalpel-dispatch/internal/server"
	"github.com/xkilldash9x/scalpel-dispatch/internal/supervisor"
)

// newServeCmd creates the `serve` command.
func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the dispatch HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), a.cfg)
		},
	}

	serveCmd.Flags().String("addr", ":3000", "address to listen on")
	serveCmd.Flags().Bool("fail-fast", false, "shut down after an unexpected fault instead of continuing to serve")

	// Flags override the config file and environment only when set.
	_ = a.v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = a.v.BindPFlag("server.fail_fast", serveCmd.Flags().Lookup("fail-fast"))
	return serveCmd
}

// runServer wires the components and serves until ctx is cancelled or, under
// fail-fast, the supervisor decides to stop.
func runServer(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer observability.Sync()

	logger := observability.GetLogger()

	router := llmclient.NewRouter(cfg.LLM, logger)
	defer func() {
		if err := router.Close(); err != nil {
			logger.Warn("Failed to close LLM clients.", zap.Error(err))
		}
	}()

	var opts []server.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(metrics.NewCollector(cfg.Metrics.Namespace, logger)))
	}

	sup := supervisor.New(logger, cfg.Server.FailFast, cancel)
	bootstrapper := browser.NewBootstrapper(cfg, router, logger)
	srv := server.New(cfg, bootstrapper, sup, logger, opts...)

	logger.Info("Starting Scalpel Dispatch",
		zap.String("version", Version),
		zap.String("address", cfg.Server.Addr),
		zap.String("default_model", cfg.LLM.DefaultModel),
		zap.Bool("fail_fast", cfg.Server.FailFast),
	)
	return srv.Start(ctx)
}
