package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the posting scheduler daemon",
	Long:  "Run the scheduler: a daily allocation tick at midnight, one-shot publish timers, and a periodic recovery sweep. Blocks until interrupted.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, logger, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		logger.Error("scheduler stopped", "error", err)
		return err
	}
	return nil
}
