package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cratedig/cratedig/internal/canonical"
	"github.com/cratedig/cratedig/internal/dedupe"
	"github.com/cratedig/cratedig/internal/fetch"
	"github.com/cratedig/cratedig/internal/rules"
	"github.com/cratedig/cratedig/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "cratedig.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newIngestor(s store.Store) *fetch.Ingestor {
	client := fetch.NewClient(fetch.ClientOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
	})
	return fetch.NewIngestor(s,
		fetch.NewYouTube(client),
		fetch.NewSoundCloud(client),
		fetch.NewTracklists(),
	)
}

func newCanonicalizer(s store.Store) *canonical.Canonicalizer {
	cache := rules.NewCache(s.ListActiveRules, cfg.Rules.CacheTTL(), nil)
	engine := rules.NewEngine(cache)
	return canonical.New(s, dedupe.NewResolver(s), engine, canonical.Options{
		AutoVerify:      cfg.AutoVerify.Enabled,
		AutoVerifyFloor: cfg.AutoVerify.Floor,
		VerifiedBy:      cfg.AutoVerify.VerifiedBy,
	})
}
