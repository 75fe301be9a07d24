package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/1mb-dev/listenlog/internal/config"
	"github.com/1mb-dev/listenlog/internal/logging"
)

// defaultConfigFiles are loaded in order: defaults → config.yaml → config.local.yaml → env vars
var defaultConfigFiles = []string{"config.yaml", "config.local.yaml"}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "listenlog",
		Short:         "Track Spotify listening time and report on it",
		Long:          "listenlog polls Spotify's currently-playing endpoint, credits continuous playback to a SQLite ledger, and serves period summaries over HTTP, Discord and the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringSlice("config", defaultConfigFiles, "config files, later files override earlier ones")

	rootCmd.AddCommand(
		newServeCmd(),
		newStatsCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the --config files and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	paths, err := cmd.Flags().GetStringSlice("config")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level)
	return cfg, logger, nil
}
