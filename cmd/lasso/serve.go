package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve constraint tracing as MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			// stdout is reserved for the MCP protocol
			logger := logging.New("lasso", cfg.LogLevel)

			server, err := mcp.NewServer(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				logger.Info("shutting down", "signal", sig)
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}
