package model

import "time"

// RuleType selects the evaluation strategy for a context rule.
type RuleType string

const (
	RuleTypePattern        RuleType = "pattern"
	RuleTypeKeyword        RuleType = "keyword"
	RuleTypeChannelMapping RuleType = "channel_mapping"
	RuleTypeTitlePattern   RuleType = "title_pattern"
)

// ContextRule maps content signals to a context suggestion. Rules are
// managed by external tooling; the engine treats them as immutable during an
// evaluation pass.
type ContextRule struct {
	ID                string      `json:"id" yaml:"id"`
	RuleType          RuleType    `json:"rule_type" yaml:"rule_type"`
	TargetContextType ContextType `json:"target_context_type" yaml:"target_context_type"`
	TargetContextName string      `json:"target_context_name" yaml:"target_context_name"`
	PatternConfig     []byte      `json:"pattern_config" yaml:"-"`
	ConfidenceWeight  float64     `json:"confidence_weight" yaml:"confidence_weight"`
	RequiresApproval  bool        `json:"requires_approval" yaml:"requires_approval"`
	Priority          int         `json:"priority" yaml:"priority"`
	IsActive          bool        `json:"is_active" yaml:"is_active"`
	CreatedAt         time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time   `json:"updated_at" yaml:"-"`
}

// SuggestionStatus tracks the review state of a context suggestion.
type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusApproved SuggestionStatus = "approved"
	SuggestionStatusRejected SuggestionStatus = "rejected"
)

// ContextSuggestion is one rule-engine output for a staged record: a
// proposed link between content and a context, with confidence and an
// approval requirement carried verbatim from the rule that fired.
type ContextSuggestion struct {
	ID               string           `json:"id"`
	StagedRecordID   string           `json:"staged_record_id"`
	RuleID           string           `json:"rule_id"`
	ContextType      ContextType      `json:"context_type"`
	ContextName      string           `json:"context_name"`
	VenueName        string           `json:"venue_name,omitempty"`
	Confidence       float64          `json:"confidence"`
	RequiresApproval bool             `json:"requires_approval"`
	Status           SuggestionStatus `json:"status"`
	ReviewedBy       string           `json:"reviewed_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
