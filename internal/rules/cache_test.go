package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/model"
)

// fakeClock moves only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func countingLoader(rules []model.ContextRule, calls *int) Loader {
	return func(ctx context.Context) ([]model.ContextRule, error) {
		*calls++
		return rules, nil
	}
}

func validRule(id string) model.ContextRule {
	return model.ContextRule{
		ID:                id,
		RuleType:          model.RuleTypeKeyword,
		TargetContextType: model.ContextTypeFestival,
		TargetContextName: "Tomorrowland",
		PatternConfig:     []byte(`{"keywords":["tomorrowland"]}`),
		ConfidenceWeight:  0.8,
		IsActive:          true,
	}
}

func TestCache_ServesWithinTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	calls := 0
	cache := NewCache(countingLoader([]model.ContextRule{validRule("r1")}, &calls), 5*time.Minute, clock.Now)

	for range 3 {
		rules, err := cache.Rules(ctx)
		require.NoError(t, err)
		assert.Len(t, rules, 1)
	}
	assert.Equal(t, 1, calls, "loader must run once within the TTL window")

	clock.Advance(4 * time.Minute)
	_, err := cache.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCache_ReloadsAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	calls := 0
	cache := NewCache(countingLoader([]model.ContextRule{validRule("r1")}, &calls), 5*time.Minute, clock.Now)

	_, err := cache.Rules(ctx)
	require.NoError(t, err)

	clock.Advance(5*time.Minute + time.Second)
	_, err = cache.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCache_InvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	calls := 0
	cache := NewCache(countingLoader([]model.ContextRule{validRule("r1")}, &calls), 5*time.Minute, clock.Now)

	_, err := cache.Rules(ctx)
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCache_DropsRulesThatFailToCompile(t *testing.T) {
	bad := validRule("bad")
	bad.RuleType = model.RuleTypePattern
	bad.PatternConfig = []byte(`{"pattern":"(unclosed"}`)

	cache := NewCache(staticLoader([]model.ContextRule{validRule("good"), bad}), time.Minute, nil)
	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "good", rules[0].rule.ID)
}

func TestCache_EvaluationOrder(t *testing.T) {
	a := validRule("a")
	a.Priority = 20
	a.ConfidenceWeight = 0.9
	b := validRule("b")
	b.Priority = 10
	b.ConfidenceWeight = 0.5
	c := validRule("c")
	c.Priority = 10
	c.ConfidenceWeight = 0.8

	cache := NewCache(staticLoader([]model.ContextRule{a, b, c}), time.Minute, nil)
	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "c", rules[0].rule.ID, "priority 10, heavier weight first")
	assert.Equal(t, "b", rules[1].rule.ID)
	assert.Equal(t, "a", rules[2].rule.ID)
}
