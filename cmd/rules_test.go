package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/rules"
)

func TestRuleFileParsing(t *testing.T) {
	doc := `
rules:
  - id: r-tml
    rule_type: keyword
    target_context_type: festival
    target_context_name: Tomorrowland
    config:
      keywords: [tomorrowland, mainstage]
      mode: any
    confidence_weight: 0.8
    requires_approval: false
    priority: 10
    is_active: true
  - id: r-cercle
    rule_type: channel_mapping
    target_context_type: publisher
    target_context_name: Cercle
    config:
      channel_ids: [UCPKT_csvP72boVX0XrMtagQ]
    confidence_weight: 0.95
    requires_approval: false
    priority: 5
    is_active: true
`
	var parsed ruleFile
	require.NoError(t, yaml.Unmarshal([]byte(doc), &parsed))
	require.Len(t, parsed.Rules, 2)

	first := parsed.Rules[0]
	assert.Equal(t, "r-tml", first.ID)
	assert.Equal(t, model.RuleTypeKeyword, first.RuleType)
	assert.Equal(t, model.ContextTypeFestival, first.TargetContextType)
	assert.InDelta(t, 0.8, first.ConfidenceWeight, 0.001)
	assert.True(t, first.IsActive)

	for i := range parsed.Rules {
		entry := &parsed.Rules[i]
		cfgJSON, err := json.Marshal(entry.Config)
		require.NoError(t, err)
		entry.PatternConfig = cfgJSON
		assert.NoError(t, rules.Validate(entry.ContextRule), "rule %s", entry.ID)
	}
}

func TestRuleFileParsing_InvalidConfigRejected(t *testing.T) {
	doc := `
rules:
  - id: r-bad
    rule_type: pattern
    target_context_type: festival
    target_context_name: Broken
    config:
      pattern: "(unclosed"
    confidence_weight: 0.5
    is_active: true
`
	var parsed ruleFile
	require.NoError(t, yaml.Unmarshal([]byte(doc), &parsed))
	require.Len(t, parsed.Rules, 1)

	entry := &parsed.Rules[0]
	cfgJSON, err := json.Marshal(entry.Config)
	require.NoError(t, err)
	entry.PatternConfig = cfgJSON
	assert.Error(t, rules.Validate(entry.ContextRule))
}
