// Package main provides the articleposter CLI: a scheduler daemon plus
// one-shot commands for generating, scheduling, and retrying articles.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ArticlePoster/internal/app"
	"ArticlePoster/internal/config"
	"ArticlePoster/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "articleposter",
	Short: "SEO article generator and WordPress auto-poster",
	Long:  "articleposter generates SEO articles with a language model, assigns them randomized publish slots, and posts them to WordPress sites on schedule.",
}

func main() {
	// Secrets (API keys, database path) come from the environment; a local
	// .env file is honored when present.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() (*app.Application, *slog.Logger, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)
	application, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}
