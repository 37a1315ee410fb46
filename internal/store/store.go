package store

import (
	"context"
	"time"

	"github.com/cratedig/cratedig/internal/model"
)

// Store defines the persistence interface for staging, catalog, jobs, rules
// and review data. Two implementations exist: SQLite (single node) and
// Postgres (shared by N worker instances).
type Store interface {
	// Staging
	InsertStagedIfAbsent(ctx context.Context, rec *model.StagedRecord) (bool, error)
	GetStaged(ctx context.Context, id string) (*model.StagedRecord, error)
	FindStagedBySourceURL(ctx context.Context, sourceURL string) (*model.StagedRecord, error)
	FindStagedByExternalID(ctx context.Context, provider, externalID string) (*model.StagedRecord, error)
	UpdateStagedStatus(ctx context.Context, id string, status model.StagedStatus, errorMessage string) error
	ListStagedByStatus(ctx context.Context, status model.StagedStatus, limit int) ([]model.StagedRecord, error)

	// Catalog
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	UpdateEntity(ctx context.Context, e *model.Entity) error
	ListEntitiesByType(ctx context.Context, t model.EntityType) ([]model.Entity, error)
	ListCandidates(ctx context.Context, t model.EntityType) ([]model.MatchCandidate, error)
	SearchEntitiesByName(ctx context.Context, t model.EntityType, nameSubstring string, limit int) ([]model.Entity, error)

	// Jobs. LeaseNextJob atomically claims the oldest runnable pending job;
	// it returns (nil, nil) when the queue is empty.
	EnqueueJob(ctx context.Context, workerType model.WorkerType, payload map[string]string, maxAttempts int) (*model.Job, error)
	LeaseNextJob(ctx context.Context) (*model.Job, error)
	CompleteJob(ctx context.Context, id string) error
	RetryJob(ctx context.Context, id string, attempts int, nextRun time.Time, errorMessage string) error
	MarkJobFailed(ctx context.Context, id string, attempts int, errorMessage string) error
	ReleaseJob(ctx context.Context, id string) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)
	JobStats(ctx context.Context) (*model.JobStats, error)

	// Context rules (read path; lifecycle is managed externally)
	UpsertRule(ctx context.Context, r *model.ContextRule) error
	ListActiveRules(ctx context.Context) ([]model.ContextRule, error)

	// Suggestions
	InsertSuggestions(ctx context.Context, suggestions []model.ContextSuggestion) error
	GetSuggestion(ctx context.Context, id string) (*model.ContextSuggestion, error)
	ListSuggestions(ctx context.Context, status model.SuggestionStatus, limit int) ([]model.ContextSuggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id string, status model.SuggestionStatus, reviewedBy string) error

	// Ambiguous-match audit queue
	InsertAmbiguousMatches(ctx context.Context, matches []model.AmbiguousMatch) error
	ListAmbiguousMatches(ctx context.Context, limit int) ([]model.AmbiguousMatch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
