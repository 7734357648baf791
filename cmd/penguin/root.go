package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	workspaceDir string
	logLevel     string
)

// buildRootCmd creates the root command with every subcommand attached,
// grounded on vanducng-goclaw/cmd/root.go's persistent-flags-plus-
// AddCommand shape.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "penguin",
		Short:         "Penguin agent runtime core",
		Long:          "Penguin drives an LLM through a bounded read/propose/apply loop: process a single turn, run an open-ended task, or inspect/rewind checkpoints.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogger(logLevel)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a project-local config file (overrides .penguin/config.yaml)")
	root.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "workspace directory (default: current directory)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(buildProcessCmd(), buildRunCmd(), buildCheckpointsCmd(), buildConfigCmd())
	return root
}

func configureLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
