package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ArticlePoster/internal/ports"
)

var (
	schedulePolicy string
	scheduleSite   string
	scheduleUser   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the time-slot allocator once",
	Long: `Assign publish timestamps to pending articles.

Policy "daily" takes one article per daypart window and schedules it for
today. Policy "batch" spreads a full batch over consecutive days and defers
when not enough pending articles exist.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&schedulePolicy, "policy", "daily", "Allocation policy: daily or batch")
	scheduleCmd.Flags().StringVar(&scheduleSite, "site", "", "Restrict to one site id")
	scheduleCmd.Flags().StringVar(&scheduleUser, "user", "", "Restrict to one user id")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	application, _, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	filter := ports.ArticleFilter{SiteID: scheduleSite, UserID: scheduleUser}

	switch schedulePolicy {
	case "daily":
		count, err := application.Allocator().AllocateDaily(ctx, filter)
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled %d articles\n", count)
	case "batch":
		outcome, err := application.Allocator().AllocateBatch(ctx, filter)
		if err != nil {
			return err
		}
		if outcome.Deferred {
			fmt.Printf("Batch deferred: %s\n", outcome.Reason)
			return nil
		}
		fmt.Printf("Scheduled %d articles\n", outcome.Scheduled)
	default:
		return fmt.Errorf("unknown policy %q (expected daily or batch)", schedulePolicy)
	}
	return nil
}
