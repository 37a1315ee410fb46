package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage context rules",
}

// ruleEntry is one rule in the import file. The nested config block is
// rule-type specific and gets serialized into the stored pattern config.
type ruleEntry struct {
	model.ContextRule `yaml:",inline"`
	Config            map[string]any `yaml:"config"`
}

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import context rules from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read rules file")
		}

		var doc ruleFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return eris.Wrap(err, "parse rules file")
		}
		if len(doc.Rules) == 0 {
			return eris.New("rules file contains no rules")
		}

		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		for i := range doc.Rules {
			entry := &doc.Rules[i]
			cfgJSON, err := json.Marshal(entry.Config)
			if err != nil {
				return eris.Wrapf(err, "encode config for rule %s", entry.ID)
			}
			entry.PatternConfig = cfgJSON

			if err := rules.Validate(entry.ContextRule); err != nil {
				return err
			}
			if err := s.UpsertRule(cmd.Context(), &entry.ContextRule); err != nil {
				return err
			}
			zap.L().Info("rule imported",
				zap.String("rule_id", entry.ID),
				zap.String("context", entry.TargetContextName))
		}

		fmt.Printf("imported %d rules\n", len(doc.Rules))
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active context rules in evaluation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		active, err := s.ListActiveRules(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range active {
			fmt.Printf("%-10s %-16s %-12s %-30s weight=%.2f priority=%d approval=%v\n",
				r.ID, r.RuleType, r.TargetContextType, r.TargetContextName,
				r.ConfidenceWeight, r.Priority, r.RequiresApproval)
		}
		fmt.Printf("%d active rules\n", len(active))
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesImportCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}
