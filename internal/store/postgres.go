package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cratedig/cratedig/internal/db"
	"github.com/cratedig/cratedig/internal/model"
)

// PostgresStore implements Store using pgxpool. The job lease uses
// FOR UPDATE SKIP LOCKED, so N worker instances can share one queue without
// double-execution.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS staged_records (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	source_url       TEXT NOT NULL UNIQUE,
	external_id      TEXT NOT NULL DEFAULT '',
	raw_title        TEXT NOT NULL DEFAULT '',
	raw_description  TEXT NOT NULL DEFAULT '',
	raw_artist       TEXT NOT NULL DEFAULT '',
	channel_id       TEXT NOT NULL DEFAULT '',
	uploaded_at      TIMESTAMPTZ,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	metadata         JSONB NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL DEFAULT 'pending',
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	name         TEXT NOT NULL,
	external_ids JSONB NOT NULL DEFAULT '{}',
	metadata     JSONB NOT NULL DEFAULT '{}',
	artist_id    TEXT NOT NULL DEFAULT '',
	venue_id     TEXT NOT NULL DEFAULT '',
	context_ids  JSONB NOT NULL DEFAULT '[]',
	is_verified  BOOLEAN NOT NULL DEFAULT FALSE,
	verified_by  TEXT NOT NULL DEFAULT '',
	verified_at  TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	worker_type   TEXT NOT NULL,
	payload       JSONB NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 5,
	last_run      TIMESTAMPTZ,
	next_run      TIMESTAMPTZ NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS context_rules (
	id                  TEXT PRIMARY KEY,
	rule_type           TEXT NOT NULL,
	target_context_type TEXT NOT NULL,
	target_context_name TEXT NOT NULL,
	pattern_config      JSONB NOT NULL DEFAULT '{}',
	confidence_weight   DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	requires_approval   BOOLEAN NOT NULL DEFAULT TRUE,
	priority            INTEGER NOT NULL DEFAULT 100,
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS context_suggestions (
	id                TEXT PRIMARY KEY,
	staged_record_id  TEXT NOT NULL REFERENCES staged_records(id),
	rule_id           TEXT NOT NULL,
	context_type      TEXT NOT NULL,
	context_name      TEXT NOT NULL,
	venue_name        TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL,
	requires_approval BOOLEAN NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	reviewed_by       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ambiguous_matches (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	query       TEXT NOT NULL,
	candidate   TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_staged_status ON staged_records(status);
CREATE INDEX IF NOT EXISTS idx_staged_external_id ON staged_records(provider, external_id);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(entity_type, name);
CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, next_run, created_at);
CREATE INDEX IF NOT EXISTS idx_rules_active ON context_rules(is_active, priority);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON context_suggestions(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Staging ---

func (s *PostgresStore) InsertStagedIfAbsent(ctx context.Context, rec *model.StagedRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = model.StagedStatusPending
	}

	metaJSON, err := json.Marshal(orEmptyMap(rec.Metadata))
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal staged metadata")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO staged_records
		 (id, provider, source_url, external_id, raw_title, raw_description, raw_artist,
		  channel_id, uploaded_at, duration_seconds, metadata, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (source_url) DO NOTHING`,
		rec.ID, rec.Provider, rec.SourceURL, rec.ExternalID, rec.RawTitle, rec.RawDescription,
		rec.RawArtist, rec.ChannelID, rec.UploadedAt, rec.DurationSeconds,
		metaJSON, string(rec.Status), now, now)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert staged record")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetStaged(ctx context.Context, id string) (*model.StagedRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stagedColumns+` FROM staged_records WHERE id = $1`, id)
	return scanStagedPg(row)
}

func (s *PostgresStore) FindStagedBySourceURL(ctx context.Context, sourceURL string) (*model.StagedRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stagedColumns+` FROM staged_records WHERE source_url = $1`, sourceURL)
	rec, err := scanStagedPg(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) FindStagedByExternalID(ctx context.Context, provider, externalID string) (*model.StagedRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stagedColumns+` FROM staged_records
		 WHERE provider = $1 AND external_id = $2 AND external_id != '' LIMIT 1`,
		provider, externalID)
	rec, err := scanStagedPg(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) UpdateStagedStatus(ctx context.Context, id string, status model.StagedStatus, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE staged_records SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		string(status), errorMessage, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update staged status %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "staged record", id)
}

func (s *PostgresStore) ListStagedByStatus(ctx context.Context, status model.StagedStatus, limit int) ([]model.StagedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stagedColumns+` FROM staged_records WHERE status = $1
		 ORDER BY created_at LIMIT $2`,
		string(status), normLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list staged")
	}
	defer rows.Close()

	var out []model.StagedRecord
	for rows.Next() {
		rec, err := scanStagedPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list staged iterate")
}

// --- Catalog ---

func (s *PostgresStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	extJSON, metaJSON, ctxJSON, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities
		 (id, entity_type, name, external_ids, metadata, artist_id, venue_id, context_ids,
		  is_verified, verified_by, verified_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, string(e.Type), e.Name, []byte(extJSON), []byte(metaJSON), e.ArtistID, e.VenueID,
		[]byte(ctxJSON), e.IsVerified, e.VerifiedBy, e.VerifiedAt, now, now)
	return eris.Wrapf(err, "postgres: insert entity %s", e.Name)
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	return scanEntityPg(row)
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	e.UpdatedAt = time.Now().UTC()

	extJSON, metaJSON, ctxJSON, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET name = $1, external_ids = $2, metadata = $3, artist_id = $4,
		 venue_id = $5, context_ids = $6, is_verified = $7, verified_by = $8, verified_at = $9, updated_at = now()
		 WHERE id = $10`,
		e.Name, []byte(extJSON), []byte(metaJSON), e.ArtistID, e.VenueID, []byte(ctxJSON),
		e.IsVerified, e.VerifiedBy, e.VerifiedAt, e.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %s", e.ID)
	}
	return checkTagAffected(tag.RowsAffected(), "entity", e.ID)
}

func (s *PostgresStore) ListEntitiesByType(ctx context.Context, t model.EntityType) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = $1 ORDER BY created_at`, string(t))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntityPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) ListCandidates(ctx context.Context, t model.EntityType) ([]model.MatchCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, metadata FROM entities WHERE entity_type = $1`, string(t))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.MatchCandidate
	for rows.Next() {
		var c model.MatchCandidate
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.Text, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal candidate metadata")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) SearchEntitiesByName(ctx context.Context, t model.EntityType, nameSubstring string, limit int) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE entity_type = $1 AND name ILIKE '%' || $2 || '%'
		 ORDER BY name LIMIT $3`,
		string(t), nameSubstring, normLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntityPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search entities iterate")
}

// --- Jobs ---

func (s *PostgresStore) EnqueueJob(ctx context.Context, workerType model.WorkerType, payload map[string]string, maxAttempts int) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	payloadJSON, err := json.Marshal(orEmptyMap(payload))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal job payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, worker_type, payload, status, attempts, max_attempts, next_run, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)`,
		id, string(workerType), payloadJSON, string(model.JobStatusPending),
		maxAttempts, now, now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue job")
	}

	return &model.Job{
		ID:          id,
		WorkerType:  workerType,
		Payload:     payload,
		Status:      model.JobStatusPending,
		MaxAttempts: maxAttempts,
		NextRun:     now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// LeaseNextJob claims the oldest runnable pending job in a single statement;
// SKIP LOCKED makes concurrently leased rows invisible, so exactly one of N
// racing instances wins each job.
func (s *PostgresStore) LeaseNextJob(ctx context.Context) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, last_run = now(), updated_at = now()
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status = $2 AND next_run <= now()
		   ORDER BY created_at
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		string(model.JobStatusRunning), string(model.JobStatusPending))

	job, err := scanJobPg(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lease job")
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = '', updated_at = now() WHERE id = $2`,
		string(model.JobStatusCompleted), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "job", id)
}

func (s *PostgresStore) RetryJob(ctx context.Context, id string, attempts int, nextRun time.Time, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, attempts = $2, next_run = $3, error_message = $4, updated_at = now() WHERE id = $5`,
		string(model.JobStatusPending), attempts, nextRun.UTC(), errorMessage, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: retry job %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "job", id)
}

func (s *PostgresStore) MarkJobFailed(ctx context.Context, id string, attempts int, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, attempts = $2, error_message = $3, updated_at = now() WHERE id = $4`,
		string(model.JobStatusFailed), attempts, errorMessage, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "job", id)
}

func (s *PostgresStore) ReleaseJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(model.JobStatusPending), id, string(model.JobStatusRunning))
	if err != nil {
		return eris.Wrapf(err, "postgres: release job %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "job", id)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJobPg(row)
}

func (s *PostgresStore) ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(status), normLimit(limit))
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`,
			normLimit(limit))
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJobPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) JobStats(ctx context.Context) (*model.JobStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: job stats")
	}
	defer rows.Close()

	stats := &model.JobStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job stats")
		}
		switch model.JobStatus(status) {
		case model.JobStatusPending:
			stats.Pending = n
		case model.JobStatusRunning:
			stats.Running = n
		case model.JobStatusCompleted:
			stats.Completed = n
		case model.JobStatusFailed:
			stats.Failed = n
		}
	}
	return stats, eris.Wrap(rows.Err(), "postgres: job stats iterate")
}

// --- Rules ---

func (s *PostgresStore) UpsertRule(ctx context.Context, r *model.ContextRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO context_rules
		 (id, rule_type, target_context_type, target_context_name, pattern_config,
		  confidence_weight, requires_approval, priority, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		   rule_type = EXCLUDED.rule_type,
		   target_context_type = EXCLUDED.target_context_type,
		   target_context_name = EXCLUDED.target_context_name,
		   pattern_config = EXCLUDED.pattern_config,
		   confidence_weight = EXCLUDED.confidence_weight,
		   requires_approval = EXCLUDED.requires_approval,
		   priority = EXCLUDED.priority,
		   is_active = EXCLUDED.is_active,
		   updated_at = now()`,
		r.ID, string(r.RuleType), string(r.TargetContextType), r.TargetContextName,
		orEmptyJSON(r.PatternConfig), r.ConfidenceWeight, r.RequiresApproval, r.Priority, r.IsActive)
	return eris.Wrapf(err, "postgres: upsert rule %s", r.TargetContextName)
}

func (s *PostgresStore) ListActiveRules(ctx context.Context) ([]model.ContextRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, rule_type, target_context_type, target_context_name, pattern_config,
		        confidence_weight, requires_approval, priority, is_active, created_at, updated_at
		 FROM context_rules WHERE is_active
		 ORDER BY priority ASC, confidence_weight DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active rules")
	}
	defer rows.Close()

	var out []model.ContextRule
	for rows.Next() {
		var r model.ContextRule
		var patternConfig []byte
		if err := rows.Scan(&r.ID, &r.RuleType, &r.TargetContextType, &r.TargetContextName,
			&patternConfig, &r.ConfidenceWeight, &r.RequiresApproval, &r.Priority,
			&r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		r.PatternConfig = patternConfig
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list active rules iterate")
}

// --- Suggestions ---

func (s *PostgresStore) InsertSuggestions(ctx context.Context, suggestions []model.ContextSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin suggestions tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for i := range suggestions {
		sg := &suggestions[i]
		if sg.ID == "" {
			sg.ID = uuid.New().String()
		}
		if sg.Status == "" {
			sg.Status = model.SuggestionStatusPending
		}
		sg.CreatedAt = now

		if _, err := tx.Exec(ctx,
			`INSERT INTO context_suggestions
			 (id, staged_record_id, rule_id, context_type, context_name, venue_name,
			  confidence, requires_approval, status, reviewed_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			sg.ID, sg.StagedRecordID, sg.RuleID, string(sg.ContextType), sg.ContextName,
			sg.VenueName, sg.Confidence, sg.RequiresApproval, string(sg.Status), sg.ReviewedBy, now); err != nil {
			return eris.Wrap(err, "postgres: insert suggestion")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit suggestions")
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (*model.ContextSuggestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM context_suggestions WHERE id = $1`, id)
	return scanSuggestionPg(row)
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, status model.SuggestionStatus, limit int) ([]model.ContextSuggestion, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+suggestionColumns+` FROM context_suggestions WHERE status = $1
			 ORDER BY confidence DESC, created_at DESC LIMIT $2`,
			string(status), normLimit(limit))
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+suggestionColumns+` FROM context_suggestions
			 ORDER BY confidence DESC, created_at DESC LIMIT $1`,
			normLimit(limit))
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestions")
	}
	defer rows.Close()

	var out []model.ContextSuggestion
	for rows.Next() {
		sg, err := scanSuggestionPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list suggestions iterate")
}

func (s *PostgresStore) UpdateSuggestionStatus(ctx context.Context, id string, status model.SuggestionStatus, reviewedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE context_suggestions SET status = $1, reviewed_by = $2 WHERE id = $3`,
		string(status), reviewedBy, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update suggestion %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "suggestion", id)
}

// --- Ambiguous matches ---

func (s *PostgresStore) InsertAmbiguousMatches(ctx context.Context, matches []model.AmbiguousMatch) error {
	if len(matches) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin ambiguous tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for i := range matches {
		m := &matches[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.CreatedAt = now

		if _, err := tx.Exec(ctx,
			`INSERT INTO ambiguous_matches (id, entity_type, query, candidate, entity_id, score, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, string(m.EntityType), m.Query, m.Candidate, m.EntityID, m.Score, now); err != nil {
			return eris.Wrap(err, "postgres: insert ambiguous match")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit ambiguous matches")
}

func (s *PostgresStore) ListAmbiguousMatches(ctx context.Context, limit int) ([]model.AmbiguousMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_type, query, candidate, entity_id, score, created_at
		 FROM ambiguous_matches ORDER BY created_at DESC LIMIT $1`, normLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ambiguous matches")
	}
	defer rows.Close()

	var out []model.AmbiguousMatch
	for rows.Next() {
		var m model.AmbiguousMatch
		if err := rows.Scan(&m.ID, &m.EntityType, &m.Query, &m.Candidate, &m.EntityID, &m.Score, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ambiguous match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ambiguous matches iterate")
}

// --- pgx scan helpers ---

func checkTagAffected(n int64, entity, id string) error {
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanStagedPg(row pgx.Row) (*model.StagedRecord, error) {
	var rec model.StagedRecord
	var metaJSON []byte
	var uploadedAt *time.Time

	err := row.Scan(&rec.ID, &rec.Provider, &rec.SourceURL, &rec.ExternalID, &rec.RawTitle,
		&rec.RawDescription, &rec.RawArtist, &rec.ChannelID, &uploadedAt, &rec.DurationSeconds,
		&metaJSON, &rec.Status, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan staged record")
	}

	rec.UploadedAt = uploadedAt
	if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal staged metadata")
	}
	return &rec, nil
}

func scanEntityPg(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var extJSON, metaJSON, ctxJSON []byte
	var verifiedAt *time.Time

	err := row.Scan(&e.ID, &e.Type, &e.Name, &extJSON, &metaJSON, &e.ArtistID, &e.VenueID,
		&ctxJSON, &e.IsVerified, &e.VerifiedBy, &verifiedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan entity")
	}

	e.VerifiedAt = verifiedAt
	if err := json.Unmarshal(extJSON, &e.ExternalIDs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal external ids")
	}
	if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity metadata")
	}
	if err := json.Unmarshal(ctxJSON, &e.ContextIDs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal context ids")
	}
	return &e, nil
}

func scanJobPg(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var payloadJSON []byte
	var lastRun *time.Time

	err := row.Scan(&j.ID, &j.WorkerType, &payloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&lastRun, &j.NextRun, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	j.LastRun = lastRun
	if err := json.Unmarshal(payloadJSON, &j.Payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job payload")
	}
	return &j, nil
}

func scanSuggestionPg(row pgx.Row) (*model.ContextSuggestion, error) {
	var sg model.ContextSuggestion

	err := row.Scan(&sg.ID, &sg.StagedRecordID, &sg.RuleID, &sg.ContextType, &sg.ContextName,
		&sg.VenueName, &sg.Confidence, &sg.RequiresApproval, &sg.Status, &sg.ReviewedBy, &sg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan suggestion")
	}
	return &sg, nil
}
