package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/model"
)

// DefaultCacheTTL is how long a loaded rule set stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// Loader fetches the active rule set, usually store.ListActiveRules.
type Loader func(ctx context.Context) ([]model.ContextRule, error)

// Cache holds the compiled rule set and reloads it when the TTL lapses.
// Concurrent refreshes are allowed; the last writer wins, which is safe
// because both loaded the same source of truth.
type Cache struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time
	log  *zap.Logger

	mu       sync.Mutex
	compiled []*compiledRule
	loadedAt time.Time
}

// NewCache builds a rule cache. now is injectable so tests can move the
// clock instead of sleeping.
func NewCache(load Loader, ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		load: load,
		ttl:  ttl,
		now:  now,
		log:  zap.L().With(zap.String("component", "rule_cache")),
	}
}

// Rules returns the compiled active rule set, refreshing from the loader
// when stale. Rules that fail to compile are dropped with a warning so one
// bad regex cannot take down the whole rule set.
func (c *Cache) Rules(ctx context.Context) ([]*compiledRule, error) {
	c.mu.Lock()
	if c.compiled != nil && c.now().Sub(c.loadedAt) < c.ttl {
		out := c.compiled
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	raw, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	compiled := make([]*compiledRule, 0, len(raw))
	for _, r := range raw {
		cr, err := compileRule(r)
		if err != nil {
			c.log.Warn("skipping rule that failed to compile",
				zap.String("rule_id", r.ID),
				zap.Error(err))
			continue
		}
		compiled = append(compiled, cr)
	}

	// Evaluation order: lowest priority value first, heaviest weight first
	// within a priority.
	sort.SliceStable(compiled, func(i, j int) bool {
		a, b := compiled[i].rule, compiled[j].rule
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ConfidenceWeight > b.ConfidenceWeight
	})

	c.mu.Lock()
	c.compiled = compiled
	c.loadedAt = c.now()
	c.mu.Unlock()
	return compiled, nil
}

// Invalidate forces the next Rules call to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.compiled = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
