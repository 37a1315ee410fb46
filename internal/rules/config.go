// Package rules evaluates context rules against staged records and emits
// context suggestions. Rule definitions live in the store; the engine reads
// them through a TTL cache so a rule edit lands within one cache window
// without a process restart.
package rules

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cratedig/cratedig/internal/model"
)

// PatternConfig matches a regular expression against the combined title and
// description.
type PatternConfig struct {
	Pattern string `json:"pattern" yaml:"pattern"`
}

// KeywordConfig matches a keyword list. Mode "all" requires every keyword;
// the default "any" fires on one or more and scales confidence by the
// matched fraction.
type KeywordConfig struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
	Mode     string   `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// ChannelMappingConfig matches the uploading channel exactly.
type ChannelMappingConfig struct {
	ChannelIDs []string `json:"channel_ids" yaml:"channel_ids"`
}

// TitlePatternConfig matches a regular expression against the title only.
// An optional first capture group extracts a venue name ("Live at (...)").
type TitlePatternConfig struct {
	Pattern string `json:"pattern" yaml:"pattern"`
}

// Validate checks that a rule's config parses and compiles. Used at import
// time so a broken rule is rejected before it reaches the store.
func Validate(r model.ContextRule) error {
	_, err := compileRule(r)
	return err
}

// compiledRule is a ContextRule with its pattern config parsed and any
// regex compiled. Compilation happens once per cache refresh, not per
// record.
type compiledRule struct {
	rule     model.ContextRule
	pattern  *regexp.Regexp
	keywords []string
	allMode  bool
	channels map[string]struct{}
}

// compileRule validates and compiles one rule. A rule that fails here is
// misconfigured and gets skipped with a log line; it never aborts the pass.
func compileRule(r model.ContextRule) (*compiledRule, error) {
	c := &compiledRule{rule: r}

	switch r.RuleType {
	case model.RuleTypePattern:
		var cfg PatternConfig
		if err := json.Unmarshal(r.PatternConfig, &cfg); err != nil {
			return nil, eris.Wrapf(err, "rules: parse pattern config for %s", r.ID)
		}
		if cfg.Pattern == "" {
			return nil, eris.Errorf("rules: empty pattern in rule %s", r.ID)
		}
		re, err := regexp.Compile("(?i)" + cfg.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: compile pattern for %s", r.ID)
		}
		c.pattern = re

	case model.RuleTypeKeyword:
		var cfg KeywordConfig
		if err := json.Unmarshal(r.PatternConfig, &cfg); err != nil {
			return nil, eris.Wrapf(err, "rules: parse keyword config for %s", r.ID)
		}
		if len(cfg.Keywords) == 0 {
			return nil, eris.Errorf("rules: no keywords in rule %s", r.ID)
		}
		for _, kw := range cfg.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				c.keywords = append(c.keywords, kw)
			}
		}
		if len(c.keywords) == 0 {
			return nil, eris.Errorf("rules: only blank keywords in rule %s", r.ID)
		}
		switch cfg.Mode {
		case "", "any":
		case "all":
			c.allMode = true
		default:
			return nil, eris.Errorf("rules: unknown keyword mode %q in rule %s", cfg.Mode, r.ID)
		}

	case model.RuleTypeChannelMapping:
		var cfg ChannelMappingConfig
		if err := json.Unmarshal(r.PatternConfig, &cfg); err != nil {
			return nil, eris.Wrapf(err, "rules: parse channel config for %s", r.ID)
		}
		if len(cfg.ChannelIDs) == 0 {
			return nil, eris.Errorf("rules: no channel ids in rule %s", r.ID)
		}
		c.channels = make(map[string]struct{}, len(cfg.ChannelIDs))
		for _, id := range cfg.ChannelIDs {
			c.channels[id] = struct{}{}
		}

	case model.RuleTypeTitlePattern:
		var cfg TitlePatternConfig
		if err := json.Unmarshal(r.PatternConfig, &cfg); err != nil {
			return nil, eris.Wrapf(err, "rules: parse title pattern config for %s", r.ID)
		}
		if cfg.Pattern == "" {
			return nil, eris.Errorf("rules: empty title pattern in rule %s", r.ID)
		}
		re, err := regexp.Compile("(?i)" + cfg.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: compile title pattern for %s", r.ID)
		}
		c.pattern = re

	default:
		return nil, eris.Errorf("rules: unknown rule type %q in rule %s", r.RuleType, r.ID)
	}

	return c, nil
}
