package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cratedig/cratedig/internal/model"
)

var (
	fetchURLFile string
	fetchEnqueue bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <provider> [url...]",
	Short: "Fetch and stage mix metadata from a provider",
	Long:  "Resolves the given source URLs through the provider's metadata endpoint and stages new records. With --enqueue the work is queued for the worker instead of running inline.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		provider := args[0]
		urls := args[1:]
		if fetchURLFile != "" {
			fromFile, err := readURLFile(fetchURLFile)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}
		if len(urls) == 0 {
			return eris.New("no urls given (pass them as arguments or via --file)")
		}

		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		if fetchEnqueue {
			job, err := s.EnqueueJob(cmd.Context(), model.WorkerTypeFetch, map[string]string{
				"provider": provider,
				"urls":     strings.Join(urls, "\n"),
			}, cfg.Processor.MaxAttempts)
			if err != nil {
				return err
			}
			fmt.Printf("enqueued fetch job %s (%d urls)\n", job.ID, len(urls))
			return nil
		}

		result, err := newIngestor(s).Ingest(cmd.Context(), provider, urls)
		if result != nil {
			fmt.Printf("%s: %d added, %d duplicates skipped, %d failures\n",
				result.Provider, result.MixesAdded, result.DuplicatesSkipped, result.Failures)
		}
		return err
	},
}

func readURLFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read url file")
	}
	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, nil
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURLFile, "file", "", "file with one source URL per line")
	fetchCmd.Flags().BoolVar(&fetchEnqueue, "enqueue", false, "queue the fetch as a job instead of running inline")
	rootCmd.AddCommand(fetchCmd)
}
