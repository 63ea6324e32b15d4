// Package main provides the entry point for the jndvps draw pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/04By0302/jnd-vps/cmd/jndvps/commands"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jndvps",
		Short: "Real-time draw ingestion, statistics and prediction pipeline",
		Long: `jndvps polls upstream draw sources, deduplicates and enriches
draws into MySQL, maintains omission and daily statistics, runs the
LLM prediction workflow and serves the cached read API.

Commands:
  serve          Run the full pipeline
  rebuild-daily  Recompute one date's daily statistics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewRebuildDailyCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "jndvps %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
