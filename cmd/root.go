package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cratedig",
	Short: "DJ mix metadata ingestion and canonicalization",
	Long:  "Fetches mix metadata from YouTube and SoundCloud, deduplicates and fuzzy-matches it into a canonical catalog, and suggests festival/show/label contexts via a rule engine.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
