package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize <staged-record-id>",
	Short: "Canonicalize one staged record inline",
	Long:  "Runs the full canonicalization pass for a single staged record without going through the job queue. Useful for debugging match and rule behavior.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		res, err := newCanonicalizer(s).Canonicalize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("outcome=%s mix=%s artist=%s suggestions=%d ambiguous=%d\n",
			res.Outcome, res.MixID, res.ArtistID, res.Suggestions, res.Ambiguous)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(canonicalizeCmd)
}
