package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Publish every article whose scheduled time has passed",
	Long:  "Run the recovery sweep once: find articles still marked scheduled with a fire time in the past and publish them immediately.",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	application, _, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	posted, err := application.Publisher().RunDue(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Published %d due articles\n", posted)
	return nil
}
