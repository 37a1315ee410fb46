package fetch

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cratedig/cratedig/internal/dedupe"
	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

// ingestConcurrency bounds parallel provider calls per run; the per-host
// rate limiters do the fine-grained pacing.
const ingestConcurrency = 4

// Ingestor fetches source URLs through registered fetchers and stages the
// results. Every staged record gets a canonicalize job enqueued.
type Ingestor struct {
	store    store.Store
	resolver *dedupe.Resolver
	fetchers map[string]Fetcher
	log      *zap.Logger
}

func NewIngestor(s store.Store, fetchers ...Fetcher) *Ingestor {
	byProvider := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		byProvider[f.Provider()] = f
	}
	return &Ingestor{
		store:    s,
		resolver: dedupe.NewResolver(s),
		fetchers: byProvider,
		log:      zap.L().With(zap.String("component", "ingestor")),
	}
}

// Providers lists the registered provider names.
func (i *Ingestor) Providers() []string {
	out := make([]string, 0, len(i.fetchers))
	for p := range i.fetchers {
		out = append(out, p)
	}
	return out
}

// Ingest fetches and stages the given URLs for one provider. Individual URL
// failures are counted, logged and skipped; the run itself only errors when
// the provider is unknown or the run produced nothing but failures.
func (i *Ingestor) Ingest(ctx context.Context, provider string, urls []string) (*model.FetchResult, error) {
	fetcher, ok := i.fetchers[provider]
	if !ok {
		return nil, model.NewValidationError("no fetcher registered for provider: " + provider)
	}

	result := &model.FetchResult{Provider: provider}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)

	for _, sourceURL := range urls {
		g.Go(func() error {
			added, skipped, err := i.ingestOne(gctx, fetcher, sourceURL)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failures++
				i.log.Warn("url ingest failed",
					zap.String("provider", provider),
					zap.String("url", sourceURL),
					zap.Error(err))
			case added:
				result.MixesAdded++
			case skipped:
				result.DuplicatesSkipped++
			}
			// Failures never abort the whole run.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, eris.Wrap(err, "fetch: ingest run")
	}

	i.log.Info("ingest run finished",
		zap.String("provider", provider),
		zap.Int("mixes_added", result.MixesAdded),
		zap.Int("duplicates_skipped", result.DuplicatesSkipped),
		zap.Int("failures", result.Failures))

	if result.Failures > 0 && result.MixesAdded == 0 && result.DuplicatesSkipped == 0 {
		return result, eris.Errorf("fetch: all %d urls failed for %s", result.Failures, provider)
	}
	return result, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, fetcher Fetcher, sourceURL string) (added, skipped bool, err error) {
	rec, err := fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return false, false, err
	}

	dup, err := i.resolver.IsDuplicateStaged(ctx, rec)
	if err != nil {
		return false, false, err
	}
	if dup {
		return false, true, nil
	}

	inserted, err := i.store.InsertStagedIfAbsent(ctx, rec)
	if err != nil {
		return false, false, err
	}
	if !inserted {
		// Lost the race to a concurrent ingest of the same URL.
		return false, true, nil
	}

	if _, err := i.store.EnqueueJob(ctx, model.WorkerTypeCanonicalize,
		map[string]string{"staged_record_id": rec.ID}, 0); err != nil {
		return true, false, eris.Wrap(err, "fetch: enqueue canonicalize job")
	}
	return true, false, nil
}

// JobWorker runs ingest jobs from the queue. The payload carries the
// provider name and a newline-separated URL list.
type JobWorker struct {
	ingestor *Ingestor
}

func NewJobWorker(ingestor *Ingestor) *JobWorker {
	return &JobWorker{ingestor: ingestor}
}

func (w *JobWorker) Type() model.WorkerType { return model.WorkerTypeFetch }

func (w *JobWorker) Execute(ctx context.Context, job *model.Job) error {
	provider := job.Payload["provider"]
	if provider == "" {
		return model.NewValidationError("job payload missing provider")
	}
	urls := splitURLs(job.Payload["urls"])
	if len(urls) == 0 {
		return model.NewValidationError("job payload has no urls")
	}
	_, err := w.ingestor.Ingest(ctx, provider, urls)
	return err
}

func splitURLs(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
