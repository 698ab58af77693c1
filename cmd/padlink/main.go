package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"padlink/api/internal/config"
	"padlink/api/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "padlink",
	Short:         "Etherpad integration API for the item platform",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads and validates the configuration and builds the process logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		_ = logger.Sync()
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
