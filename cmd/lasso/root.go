package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:                   "lasso [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Lasso traces natural-language constraints to the Java code that enforces them.",
		Long: `Lasso detects enforcing-statement patterns in Java projects, ranks them against
constraints and evaluates the rankings against ground truth. It also serves
constraint tracing as MCP tools.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(), newDetectCmd(), newIndexCmd(),
		newEvaluateCmd(), newWeightsCmd(), newVersionCmd())
}

// Execute runs the root command
func Execute() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// environment is what every command needs: the configuration, a logger on
// stderr and the cache database
type environment struct {
	cfg    *config.Config
	logger hclog.Logger
	store  *storage.SQLiteStorage
}

func setup(name string) (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.New(name, cfg.LogLevel)

	if err := os.MkdirAll(cfg.CachePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Debug("opened cache", "path", cfg.DatabasePath(), "driver", storage.DriverName, "mode", storage.BuildMode)
	return &environment{cfg: cfg, logger: logger, store: store}, nil
}

func (e *environment) Close() {
	_ = e.store.Close()
}
