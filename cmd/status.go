package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratedig/cratedig/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show staging and job queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		fmt.Println("staged records:")
		for _, st := range []model.StagedStatus{
			model.StagedStatusPending,
			model.StagedStatusProcessing,
			model.StagedStatusCanonicalized,
			model.StagedStatusFailed,
		} {
			recs, err := s.ListStagedByStatus(cmd.Context(), st, 10000)
			if err != nil {
				return err
			}
			fmt.Printf("  %-14s %d\n", st, len(recs))
		}

		stats, err := s.JobStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("jobs: pending=%d running=%d completed=%d failed=%d\n",
			stats.Pending, stats.Running, stats.Completed, stats.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
