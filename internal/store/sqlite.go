package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cratedig/cratedig/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. SQLite has no
// FOR UPDATE SKIP LOCKED, so the job lease uses an optimistic
// compare-and-swap on status + updated_at, retried on conflict.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS staged_records (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	source_url       TEXT NOT NULL UNIQUE,
	external_id      TEXT NOT NULL DEFAULT '',
	raw_title        TEXT NOT NULL DEFAULT '',
	raw_description  TEXT NOT NULL DEFAULT '',
	raw_artist       TEXT NOT NULL DEFAULT '',
	channel_id       TEXT NOT NULL DEFAULT '',
	uploaded_at      DATETIME,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	metadata         TEXT NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL DEFAULT 'pending',
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	name         TEXT NOT NULL,
	external_ids TEXT NOT NULL DEFAULT '{}',
	metadata     TEXT NOT NULL DEFAULT '{}',
	artist_id    TEXT NOT NULL DEFAULT '',
	venue_id     TEXT NOT NULL DEFAULT '',
	context_ids  TEXT NOT NULL DEFAULT '[]',
	is_verified  INTEGER NOT NULL DEFAULT 0,
	verified_by  TEXT NOT NULL DEFAULT '',
	verified_at  DATETIME,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	worker_type   TEXT NOT NULL,
	payload       TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 5,
	last_run      DATETIME,
	next_run      DATETIME NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS context_rules (
	id                  TEXT PRIMARY KEY,
	rule_type           TEXT NOT NULL,
	target_context_type TEXT NOT NULL,
	target_context_name TEXT NOT NULL,
	pattern_config      TEXT NOT NULL DEFAULT '{}',
	confidence_weight   REAL NOT NULL DEFAULT 0.5,
	requires_approval   INTEGER NOT NULL DEFAULT 1,
	priority            INTEGER NOT NULL DEFAULT 100,
	is_active           INTEGER NOT NULL DEFAULT 1,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS context_suggestions (
	id                TEXT PRIMARY KEY,
	staged_record_id  TEXT NOT NULL REFERENCES staged_records(id),
	rule_id           TEXT NOT NULL,
	context_type      TEXT NOT NULL,
	context_name      TEXT NOT NULL,
	venue_name        TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL,
	requires_approval INTEGER NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	reviewed_by       TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ambiguous_matches (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	query       TEXT NOT NULL,
	candidate   TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	score       REAL NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staged_status ON staged_records(status);
CREATE INDEX IF NOT EXISTS idx_staged_external_id ON staged_records(provider, external_id);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(entity_type, name);
CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, next_run, created_at);
CREATE INDEX IF NOT EXISTS idx_rules_active ON context_rules(is_active, priority);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON context_suggestions(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Staging ---

const stagedColumns = `id, provider, source_url, external_id, raw_title, raw_description,
	raw_artist, channel_id, uploaded_at, duration_seconds, metadata, status,
	error_message, created_at, updated_at`

func (s *SQLiteStore) InsertStagedIfAbsent(ctx context.Context, rec *model.StagedRecord) (bool, error) {
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
		return false, eris.Wrap(err, "sqlite: marshal staged metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO staged_records
		 (id, provider, source_url, external_id, raw_title, raw_description, raw_artist,
		  channel_id, uploaded_at, duration_seconds, metadata, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		rec.ID, rec.Provider, rec.SourceURL, rec.ExternalID, rec.RawTitle, rec.RawDescription,
		rec.RawArtist, rec.ChannelID, nullTime(rec.UploadedAt), rec.DurationSeconds,
		string(metaJSON), string(rec.Status), now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert staged record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetStaged(ctx context.Context, id string) (*model.StagedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stagedColumns+` FROM staged_records WHERE id = ?`, id)
	return scanStaged(row)
}

func (s *SQLiteStore) FindStagedBySourceURL(ctx context.Context, sourceURL string) (*model.StagedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stagedColumns+` FROM staged_records WHERE source_url = ?`, sourceURL)
	rec, err := scanStaged(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) FindStagedByExternalID(ctx context.Context, provider, externalID string) (*model.StagedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stagedColumns+` FROM staged_records
		 WHERE provider = ? AND external_id = ? AND external_id != '' LIMIT 1`,
		provider, externalID)
	rec, err := scanStaged(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) UpdateStagedStatus(ctx context.Context, id string, status model.StagedStatus, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE staged_records SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), errorMessage, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update staged status %s", id)
	}
	return checkRowsAffected(res, "staged record", id)
}

func (s *SQLiteStore) ListStagedByStatus(ctx context.Context, status model.StagedStatus, limit int) ([]model.StagedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stagedColumns+` FROM staged_records WHERE status = ?
		 ORDER BY created_at LIMIT ?`,
		string(status), normLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list staged")
	}
	defer rows.Close()

	var out []model.StagedRecord
	for rows.Next() {
		rec, err := scanStaged(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list staged iterate")
}

// --- Catalog ---

const entityColumns = `id, entity_type, name, external_ids, metadata, artist_id, venue_id,
	context_ids, is_verified, verified_by, verified_at, created_at, updated_at`

func (s *SQLiteStore) CreateEntity(ctx context.Context, e *model.Entity) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities
		 (id, entity_type, name, external_ids, metadata, artist_id, venue_id, context_ids,
		  is_verified, verified_by, verified_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Name, extJSON, metaJSON, e.ArtistID, e.VenueID, ctxJSON,
		e.IsVerified, e.VerifiedBy, nullTime(e.VerifiedAt), now, now)
	return eris.Wrapf(err, "sqlite: insert entity %s", e.Name)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	e.UpdatedAt = time.Now().UTC()

	extJSON, metaJSON, ctxJSON, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET name = ?, external_ids = ?, metadata = ?, artist_id = ?,
		 venue_id = ?, context_ids = ?, is_verified = ?, verified_by = ?, verified_at = ?, updated_at = ?
		 WHERE id = ?`,
		e.Name, extJSON, metaJSON, e.ArtistID, e.VenueID, ctxJSON,
		e.IsVerified, e.VerifiedBy, nullTime(e.VerifiedAt), e.UpdatedAt, e.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	return checkRowsAffected(res, "entity", e.ID)
}

func (s *SQLiteStore) ListEntitiesByType(ctx context.Context, t model.EntityType) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = ? ORDER BY created_at`, string(t))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()
	return collectEntities(rows)
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, t model.EntityType) ([]model.MatchCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, metadata FROM entities WHERE entity_type = ?`, string(t))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.MatchCandidate
	for rows.Next() {
		var c model.MatchCandidate
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.Text, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidate metadata")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) SearchEntitiesByName(ctx context.Context, t model.EntityType, nameSubstring string, limit int) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE entity_type = ? AND name LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY name LIMIT ?`,
		string(t), nameSubstring, normLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search entities")
	}
	defer rows.Close()
	return collectEntities(rows)
}

// --- Jobs ---

const jobColumns = `id, worker_type, payload, status, attempts, max_attempts,
	last_run, next_run, error_message, created_at, updated_at`

func (s *SQLiteStore) EnqueueJob(ctx context.Context, workerType model.WorkerType, payload map[string]string, maxAttempts int) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	payloadJSON, err := json.Marshal(orEmptyMap(payload))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal job payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, worker_type, payload, status, attempts, max_attempts, next_run, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, '', ?, ?)`,
		id, string(workerType), string(payloadJSON), string(model.JobStatusPending),
		maxAttempts, now, now, now)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue job")
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

// LeaseNextJob selects the oldest runnable pending job and claims it with a
// compare-and-swap on (status, updated_at). A concurrent lease of the same
// row loses the swap and retries against the next snapshot; after a few
// contended rounds it reports an empty queue and the caller polls again.
func (s *SQLiteStore) LeaseNextJob(ctx context.Context) (*model.Job, error) {
	for attempt := 0; attempt < 3; attempt++ {
		// next_run is compared against a bound timestamp so both sides share
		// the driver's serialization format.
		var id, seenUpdatedAt string
		err := s.db.QueryRowContext(ctx,
			`SELECT id, CAST(updated_at AS TEXT) FROM jobs
			 WHERE status = ? AND next_run <= ?
			 ORDER BY created_at LIMIT 1`,
			string(model.JobStatusPending), time.Now().UTC()).Scan(&id, &seenUpdatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: select pending job")
		}

		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_run = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND CAST(updated_at AS TEXT) = ?`,
			string(model.JobStatusRunning), now, now,
			id, string(model.JobStatusPending), seenUpdatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: lease job")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 1 {
			return s.GetJob(ctx, id)
		}
		// Lost the race; re-read the queue.
	}
	return nil, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		string(model.JobStatusCompleted), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) RetryJob(ctx context.Context, id string, attempts int, nextRun time.Time, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, next_run = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusPending), attempts, nextRun.UTC(), errorMessage, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: retry job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) MarkJobFailed(ctx context.Context, id string, attempts int, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusFailed), attempts, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) ReleaseJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusPending), time.Now().UTC(), id, string(model.JobStatusRunning))
	if err != nil {
		return eris.Wrapf(err, "sqlite: release job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, normLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) JobStats(ctx context.Context) (*model.JobStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: job stats")
	}
	defer rows.Close()

	stats := &model.JobStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job stats")
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
	return stats, eris.Wrap(rows.Err(), "sqlite: job stats iterate")
}

// --- Rules ---

func (s *SQLiteStore) UpsertRule(ctx context.Context, r *model.ContextRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context_rules
		 (id, rule_type, target_context_type, target_context_name, pattern_config,
		  confidence_weight, requires_approval, priority, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   rule_type = excluded.rule_type,
		   target_context_type = excluded.target_context_type,
		   target_context_name = excluded.target_context_name,
		   pattern_config = excluded.pattern_config,
		   confidence_weight = excluded.confidence_weight,
		   requires_approval = excluded.requires_approval,
		   priority = excluded.priority,
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		r.ID, string(r.RuleType), string(r.TargetContextType), r.TargetContextName,
		string(orEmptyJSON(r.PatternConfig)), r.ConfidenceWeight, r.RequiresApproval,
		r.Priority, r.IsActive, now, now)
	return eris.Wrapf(err, "sqlite: upsert rule %s", r.TargetContextName)
}

func (s *SQLiteStore) ListActiveRules(ctx context.Context) ([]model.ContextRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_type, target_context_type, target_context_name, pattern_config,
		        confidence_weight, requires_approval, priority, is_active, created_at, updated_at
		 FROM context_rules WHERE is_active = 1
		 ORDER BY priority ASC, confidence_weight DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active rules")
	}
	defer rows.Close()

	var out []model.ContextRule
	for rows.Next() {
		var r model.ContextRule
		var patternConfig string
		if err := rows.Scan(&r.ID, &r.RuleType, &r.TargetContextType, &r.TargetContextName,
			&patternConfig, &r.ConfidenceWeight, &r.RequiresApproval, &r.Priority,
			&r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		r.PatternConfig = []byte(patternConfig)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list active rules iterate")
}

// --- Suggestions ---

func (s *SQLiteStore) InsertSuggestions(ctx context.Context, suggestions []model.ContextSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin suggestions tx")
	}
	defer tx.Rollback() //nolint:errcheck

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

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO context_suggestions
			 (id, staged_record_id, rule_id, context_type, context_name, venue_name,
			  confidence, requires_approval, status, reviewed_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sg.ID, sg.StagedRecordID, sg.RuleID, string(sg.ContextType), sg.ContextName,
			sg.VenueName, sg.Confidence, sg.RequiresApproval, string(sg.Status), sg.ReviewedBy, now); err != nil {
			return eris.Wrap(err, "sqlite: insert suggestion")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit suggestions")
}

const suggestionColumns = `id, staged_record_id, rule_id, context_type, context_name,
	venue_name, confidence, requires_approval, status, reviewed_by, created_at`

func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*model.ContextSuggestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM context_suggestions WHERE id = ?`, id)
	return scanSuggestion(row)
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context, status model.SuggestionStatus, limit int) ([]model.ContextSuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM context_suggestions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY confidence DESC, created_at DESC LIMIT ?`
	args = append(args, normLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestions")
	}
	defer rows.Close()

	var out []model.ContextSuggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list suggestions iterate")
}

func (s *SQLiteStore) UpdateSuggestionStatus(ctx context.Context, id string, status model.SuggestionStatus, reviewedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE context_suggestions SET status = ?, reviewed_by = ? WHERE id = ?`,
		string(status), reviewedBy, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update suggestion %s", id)
	}
	return checkRowsAffected(res, "suggestion", id)
}

// --- Ambiguous matches ---

func (s *SQLiteStore) InsertAmbiguousMatches(ctx context.Context, matches []model.AmbiguousMatch) error {
	if len(matches) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin ambiguous tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range matches {
		m := &matches[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.CreatedAt = now

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ambiguous_matches (id, entity_type, query, candidate, entity_id, score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, string(m.EntityType), m.Query, m.Candidate, m.EntityID, m.Score, now); err != nil {
			return eris.Wrap(err, "sqlite: insert ambiguous match")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit ambiguous matches")
}

func (s *SQLiteStore) ListAmbiguousMatches(ctx context.Context, limit int) ([]model.AmbiguousMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, query, candidate, entity_id, score, created_at
		 FROM ambiguous_matches ORDER BY created_at DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ambiguous matches")
	}
	defer rows.Close()

	var out []model.AmbiguousMatch
	for rows.Next() {
		var m model.AmbiguousMatch
		if err := rows.Scan(&m.ID, &m.EntityType, &m.Query, &m.Candidate, &m.EntityID, &m.Score, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ambiguous match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ambiguous matches iterate")
}

// --- helpers ---

// ErrNotFound is returned by Get* lookups for missing rows; Find* lookups
// translate it to (nil, nil).
var ErrNotFound = eris.New("store: not found")

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func normLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func marshalEntityJSON(e *model.Entity) (ext, meta, ctxIDs string, err error) {
	extJSON, err := json.Marshal(orEmptyMap(e.ExternalIDs))
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal external ids")
	}
	metaJSON, err := json.Marshal(orEmptyMap(e.Metadata))
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal entity metadata")
	}
	ids := e.ContextIDs
	if ids == nil {
		ids = []string{}
	}
	ctxJSON, err := json.Marshal(ids)
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal context ids")
	}
	return string(extJSON), string(metaJSON), string(ctxJSON), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStaged(row scannable) (*model.StagedRecord, error) {
	var rec model.StagedRecord
	var metaJSON string
	var uploadedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.Provider, &rec.SourceURL, &rec.ExternalID, &rec.RawTitle,
		&rec.RawDescription, &rec.RawArtist, &rec.ChannelID, &uploadedAt, &rec.DurationSeconds,
		&metaJSON, &rec.Status, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan staged record")
	}

	if uploadedAt.Valid {
		t := uploadedAt.Time
		rec.UploadedAt = &t
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal staged metadata")
	}
	return &rec, nil
}

func scanEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var extJSON, metaJSON, ctxJSON string
	var verifiedAt sql.NullTime

	err := row.Scan(&e.ID, &e.Type, &e.Name, &extJSON, &metaJSON, &e.ArtistID, &e.VenueID,
		&ctxJSON, &e.IsVerified, &e.VerifiedBy, &verifiedAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan entity")
	}

	if verifiedAt.Valid {
		t := verifiedAt.Time
		e.VerifiedAt = &t
	}
	if err := json.Unmarshal([]byte(extJSON), &e.ExternalIDs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal external ids")
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal entity metadata")
	}
	if err := json.Unmarshal([]byte(ctxJSON), &e.ContextIDs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal context ids")
	}
	return &e, nil
}

func collectEntities(rows *sql.Rows) ([]model.Entity, error) {
	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "store: collect entities")
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var payloadJSON string
	var lastRun sql.NullTime

	err := row.Scan(&j.ID, &j.WorkerType, &payloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&lastRun, &j.NextRun, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan job")
	}

	if lastRun.Valid {
		t := lastRun.Time
		j.LastRun = &t
	}
	if err := json.Unmarshal([]byte(payloadJSON), &j.Payload); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal job payload")
	}
	return &j, nil
}

func scanSuggestion(row scannable) (*model.ContextSuggestion, error) {
	var sg model.ContextSuggestion

	err := row.Scan(&sg.ID, &sg.StagedRecordID, &sg.RuleID, &sg.ContextType, &sg.ContextName,
		&sg.VenueName, &sg.Confidence, &sg.RequiresApproval, &sg.Status, &sg.ReviewedBy, &sg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan suggestion")
	}
	return &sg, nil
}
