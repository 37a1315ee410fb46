package fetch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

// stubFetcher serves canned records keyed by URL.
type stubFetcher struct {
	provider string
	records  map[string]*model.StagedRecord
}

func (f *stubFetcher) Provider() string { return f.provider }
func (f *stubFetcher) Fetch(ctx context.Context, sourceURL string) (*model.StagedRecord, error) {
	rec, ok := f.records[sourceURL]
	if !ok {
		return nil, errors.New("stub: fetch failed for " + sourceURL)
	}
	cp := *rec
	return &cp, nil
}

func newIngestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ytRecord(videoID, title string) *model.StagedRecord {
	return &model.StagedRecord{
		Provider:   "youtube",
		SourceURL:  "https://youtube.com/watch?v=" + videoID,
		ExternalID: videoID,
		RawTitle:   title,
	}
}

func TestIngest_StagesAndEnqueues(t *testing.T) {
	ctx := context.Background()
	s := newIngestStore(t)

	r1 := ytRecord("vid1", "Lane 8 - Spring Mix")
	r2 := ytRecord("vid2", "Ben Böhmer - Live in Berlin")
	ing := NewIngestor(s, &stubFetcher{provider: "youtube", records: map[string]*model.StagedRecord{
		r1.SourceURL: r1,
		r2.SourceURL: r2,
	}})

	result, err := ing.Ingest(ctx, "youtube", []string{r1.SourceURL, r2.SourceURL})
	require.NoError(t, err)
	assert.Equal(t, 2, result.MixesAdded)
	assert.Equal(t, 0, result.DuplicatesSkipped)
	assert.Equal(t, 0, result.Failures)

	staged, err := s.ListStagedByStatus(ctx, model.StagedStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, staged, 2)

	jobs, err := s.ListJobs(ctx, model.JobStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2, "each staged record gets a canonicalize job")
	for _, j := range jobs {
		assert.Equal(t, model.WorkerTypeCanonicalize, j.WorkerType)
		assert.NotEmpty(t, j.Payload["staged_record_id"])
	}
}

func TestIngest_SkipsDuplicatesOnSecondRun(t *testing.T) {
	ctx := context.Background()
	s := newIngestStore(t)

	r1 := ytRecord("vid1", "Lane 8 - Spring Mix")
	ing := NewIngestor(s, &stubFetcher{provider: "youtube", records: map[string]*model.StagedRecord{
		r1.SourceURL: r1,
	}})

	_, err := ing.Ingest(ctx, "youtube", []string{r1.SourceURL})
	require.NoError(t, err)

	result, err := ing.Ingest(ctx, "youtube", []string{r1.SourceURL})
	require.NoError(t, err)
	assert.Equal(t, 0, result.MixesAdded)
	assert.Equal(t, 1, result.DuplicatesSkipped)

	jobs, err := s.ListJobs(ctx, model.JobStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "no second job for a duplicate")
}

func TestIngest_CountsFailuresWithoutAborting(t *testing.T) {
	ctx := context.Background()
	s := newIngestStore(t)

	r1 := ytRecord("vid1", "Lane 8 - Spring Mix")
	ing := NewIngestor(s, &stubFetcher{provider: "youtube", records: map[string]*model.StagedRecord{
		r1.SourceURL: r1,
	}})

	result, err := ing.Ingest(ctx, "youtube", []string{r1.SourceURL, "https://youtube.com/watch?v=broken"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MixesAdded)
	assert.Equal(t, 1, result.Failures)
}

func TestIngest_AllFailuresIsAnError(t *testing.T) {
	s := newIngestStore(t)
	ing := NewIngestor(s, &stubFetcher{provider: "youtube", records: map[string]*model.StagedRecord{}})

	result, err := ing.Ingest(context.Background(), "youtube", []string{"https://youtube.com/watch?v=broken"})
	assert.Error(t, err)
	assert.Equal(t, 1, result.Failures)
}

func TestIngest_UnknownProvider(t *testing.T) {
	s := newIngestStore(t)
	ing := NewIngestor(s)

	_, err := ing.Ingest(context.Background(), "mixcloud", []string{"https://mixcloud.com/x"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestJobWorker_ParsesPayload(t *testing.T) {
	ctx := context.Background()
	s := newIngestStore(t)

	r1 := ytRecord("vid1", "Lane 8 - Spring Mix")
	r2 := ytRecord("vid2", "Ben Böhmer - Live in Berlin")
	w := NewJobWorker(NewIngestor(s, &stubFetcher{provider: "youtube", records: map[string]*model.StagedRecord{
		r1.SourceURL: r1,
		r2.SourceURL: r2,
	}}))
	assert.Equal(t, model.WorkerTypeFetch, w.Type())

	err := w.Execute(ctx, &model.Job{Payload: map[string]string{
		"provider": "youtube",
		"urls":     strings.Join([]string{r1.SourceURL, "", "  " + r2.SourceURL + "  "}, "\n"),
	}})
	require.NoError(t, err)

	staged, err := s.ListStagedByStatus(ctx, model.StagedStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, staged, 2)
}

func TestJobWorker_MissingPayload(t *testing.T) {
	w := NewJobWorker(NewIngestor(newIngestStore(t)))

	var verr *model.ValidationError
	err := w.Execute(context.Background(), &model.Job{Payload: map[string]string{"urls": "https://x"}})
	assert.ErrorAs(t, err, &verr)

	err = w.Execute(context.Background(), &model.Job{Payload: map[string]string{"provider": "youtube"}})
	assert.ErrorAs(t, err, &verr)
}
