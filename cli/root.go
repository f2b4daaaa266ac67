// Package cli implements the engine command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mintresearch/agent-engine/config"
	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errReported marks a failure whose output was already printed
var errReported = errors.New("command failed")

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Agent interaction engine",
	Long: "Runs user input through a fixed pipeline of memory lookup, optional tool\n" +
		"execution and text generation, validates policies against rule files and\n" +
		"exposes runtime status over HTTP and MCP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the environment configuration and builds the logger
func loadConfig(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
