package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <article-id>",
	Short: "Return a failed article to the pending pool",
	Long:  "Move one failed article back to pending so the next allocation run schedules it again. Articles in any other state are left untouched.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	application, _, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ok, err := application.Publisher().Retry(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("Article %s is not in the failed state; nothing to do\n", args[0])
		return nil
	}
	fmt.Printf("Article %s returned to pending\n", args[0])
	return nil
}
