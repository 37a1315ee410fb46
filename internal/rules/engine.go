package rules

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/model"
)

// Engine evaluates the cached rule set against staged records.
type Engine struct {
	cache *Cache
	log   *zap.Logger
}

func NewEngine(cache *Cache) *Engine {
	return &Engine{
		cache: cache,
		log:   zap.L().With(zap.String("component", "rule_engine")),
	}
}

// firing is one rule's positive result before dedup.
type firing struct {
	rule       *model.ContextRule
	confidence float64
	venueName  string
}

// SuggestContexts runs every active rule against rec and returns deduplicated
// suggestions ordered by confidence, highest first. A rule that panics or
// misbehaves is logged and skipped; the rest of the pass continues.
func (e *Engine) SuggestContexts(ctx context.Context, rec *model.StagedRecord) ([]model.ContextSuggestion, error) {
	compiled, err := e.cache.Rules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "rules: load rule set")
	}

	// Dedup by (context type, lowercased name): the highest-confidence firing
	// wins; earlier rules (lower priority value) win ties via evaluation order.
	best := map[string]*firing{}
	var order []string

	for _, cr := range compiled {
		f := e.evaluate(cr, rec)
		if f == nil {
			continue
		}
		key := string(cr.rule.TargetContextType) + "\x00" + strings.ToLower(cr.rule.TargetContextName)
		if prev, seen := best[key]; seen {
			if f.confidence > prev.confidence {
				best[key] = f
			}
			continue
		}
		best[key] = f
		order = append(order, key)
	}

	out := make([]model.ContextSuggestion, 0, len(best))
	for _, key := range order {
		f := best[key]
		out = append(out, model.ContextSuggestion{
			StagedRecordID:   rec.ID,
			RuleID:           f.rule.ID,
			ContextType:      f.rule.TargetContextType,
			ContextName:      f.rule.TargetContextName,
			VenueName:        f.venueName,
			Confidence:       f.confidence,
			RequiresApproval: f.rule.RequiresApproval,
			Status:           model.SuggestionStatusPending,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// evaluate runs one compiled rule against a record. Panics inside a rule
// (pathological regex input, bad config that slipped past compile) are
// contained here.
func (e *Engine) evaluate(cr *compiledRule, rec *model.StagedRecord) (f *firing) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("rule evaluation panicked",
				zap.String("rule_id", cr.rule.ID),
				zap.Any("panic", r))
			f = nil
		}
	}()

	switch cr.rule.RuleType {
	case model.RuleTypePattern:
		haystack := rec.RawTitle + "\n" + rec.RawDescription
		if cr.pattern.MatchString(haystack) {
			return &firing{rule: &cr.rule, confidence: cr.rule.ConfidenceWeight}
		}

	case model.RuleTypeKeyword:
		haystack := strings.ToLower(rec.RawTitle + "\n" + rec.RawDescription)
		matched := 0
		for _, kw := range cr.keywords {
			if strings.Contains(haystack, kw) {
				matched++
			}
		}
		if cr.allMode {
			if matched == len(cr.keywords) {
				return &firing{rule: &cr.rule, confidence: cr.rule.ConfidenceWeight}
			}
			return nil
		}
		if matched > 0 {
			frac := float64(matched) / float64(len(cr.keywords))
			return &firing{rule: &cr.rule, confidence: cr.rule.ConfidenceWeight * frac}
		}

	case model.RuleTypeChannelMapping:
		if rec.ChannelID == "" {
			return nil
		}
		if _, ok := cr.channels[rec.ChannelID]; ok {
			return &firing{rule: &cr.rule, confidence: cr.rule.ConfidenceWeight}
		}

	case model.RuleTypeTitlePattern:
		m := cr.pattern.FindStringSubmatch(rec.RawTitle)
		if m == nil {
			return nil
		}
		f := &firing{rule: &cr.rule, confidence: cr.rule.ConfidenceWeight}
		if len(m) > 1 {
			f.venueName = strings.TrimSpace(m[1])
		}
		return f
	}

	return nil
}
