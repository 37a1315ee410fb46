package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cratedig/cratedig/internal/canonical"
	"github.com/cratedig/cratedig/internal/fetch"
	"github.com/cratedig/cratedig/internal/jobs"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job processor",
	Long:  "Polls the job queue and executes fetch and canonicalize jobs until interrupted. Safe to run as several instances against a shared Postgres store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		p := jobs.NewProcessor(s, jobs.Config{
			PollInterval: cfg.Processor.PollInterval(),
			BackoffBase:  cfg.Processor.BackoffBase(),
		})
		p.Register(canonical.NewJobWorker(newCanonicalizer(s)))
		p.Register(fetch.NewJobWorker(newIngestor(s)))

		return p.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
