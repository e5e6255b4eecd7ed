// Package cmd implements the dealcrawler command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dealmungchi/dealcrawler/config"
	"github.com/dealmungchi/dealcrawler/logger"
)

var (
	// cfg is loaded before any subcommand runs
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "dealcrawler",
		Short:         "Crawl hot-deal community boards",
		Long:          `dealcrawler collects hot-deal posts from Korean community boards, normalizes and deduplicates them, and stores and streams the new ones.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.AddCommand(
		newCrawlCommand(),
		newServeCommand(),
		newSourcesCommand(),
		newExportCommand(),
		newImportCommand(),
	)
}

// Execute runs the root command
func Execute() error {
	// .env is optional
	_ = godotenv.Load()
	logger.Init()

	return rootCmd.ExecuteContext(context.Background())
}
