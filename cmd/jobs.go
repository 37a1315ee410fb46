package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratedig/cratedig/internal/model"
)

var jobsStatus string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the job queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		list, err := s.ListJobs(cmd.Context(), model.JobStatus(jobsStatus), 50)
		if err != nil {
			return err
		}
		for _, j := range list {
			fmt.Printf("%-36s %-12s %-10s attempts=%d/%d next_run=%s %s\n",
				j.ID, j.WorkerType, j.Status, j.Attempts, j.MaxAttempts,
				j.NextRun.Format("2006-01-02T15:04:05Z"), j.ErrorMessage)
		}
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		stats, err := s.JobStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("pending=%d running=%d completed=%d failed=%d\n",
			stats.Pending, stats.Running, stats.Completed, stats.Failed)
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending|running|completed|failed)")
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}
