// Package canonical turns staged provider records into canonical catalog
// entities. One pass per record: duplicate short-circuit, artist and mix
// resolution through fuzzy matching, context suggestion, and a final status
// transition on the staged record.
package canonical

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/dedupe"
	"github.com/cratedig/cratedig/internal/extid"
	"github.com/cratedig/cratedig/internal/match"
	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/normalize"
	"github.com/cratedig/cratedig/internal/rules"
	"github.com/cratedig/cratedig/internal/store"
)

// Outcome says how a staged record entered the catalog.
type Outcome string

const (
	OutcomeMergedDuplicate Outcome = "merged_duplicate"
	OutcomeMatchedExisting Outcome = "matched_existing"
	OutcomeCreatedNew      Outcome = "created_new"
)

// Result summarizes one canonicalization pass.
type Result struct {
	StagedRecordID string  `json:"staged_record_id"`
	Outcome        Outcome `json:"outcome"`
	MixID          string  `json:"mix_id"`
	ArtistID       string  `json:"artist_id,omitempty"`
	Suggestions    int     `json:"suggestions"`
	Ambiguous      int     `json:"ambiguous"`
}

// Options tune entity creation. When AutoVerify is on, suggestions that do
// not require approval and clear the floor are approved without a human in
// the loop, attributed to VerifiedBy.
type Options struct {
	AutoVerify      bool
	AutoVerifyFloor float64
	VerifiedBy      string
}

// Canonicalizer orchestrates a single record's journey from staging to the
// catalog.
type Canonicalizer struct {
	store    store.Store
	resolver *dedupe.Resolver
	engine   *rules.Engine
	opts     Options
	log      *zap.Logger
}

func New(s store.Store, resolver *dedupe.Resolver, engine *rules.Engine, opts Options) *Canonicalizer {
	return &Canonicalizer{
		store:    s,
		resolver: resolver,
		engine:   engine,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "canonicalizer")),
	}
}

// Canonicalize processes one staged record end to end. The record moves
// pending -> processing -> canonicalized, or to failed with the error
// recorded. A ValidationError means the record can never succeed; callers
// (the job processor) treat it as terminal.
func (c *Canonicalizer) Canonicalize(ctx context.Context, stagedRecordID string) (*Result, error) {
	rec, err := c.store.GetStaged(ctx, stagedRecordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.NewValidationError("staged record not found: " + stagedRecordID)
		}
		return nil, eris.Wrap(err, "canonical: load staged record")
	}

	if rec.Status == model.StagedStatusCanonicalized {
		c.log.Info("record already canonicalized, skipping", zap.String("staged_record_id", rec.ID))
		return &Result{StagedRecordID: rec.ID, Outcome: OutcomeMergedDuplicate}, nil
	}

	if err := c.store.UpdateStagedStatus(ctx, rec.ID, model.StagedStatusProcessing, ""); err != nil {
		return nil, eris.Wrap(err, "canonical: mark processing")
	}

	res, err := c.process(ctx, rec)
	if err != nil {
		if statusErr := c.store.UpdateStagedStatus(ctx, rec.ID, model.StagedStatusFailed, err.Error()); statusErr != nil {
			c.log.Error("failed to record failure status",
				zap.String("staged_record_id", rec.ID),
				zap.Error(statusErr))
		}
		return nil, err
	}

	if err := c.store.UpdateStagedStatus(ctx, rec.ID, model.StagedStatusCanonicalized, ""); err != nil {
		return nil, eris.Wrap(err, "canonical: mark canonicalized")
	}
	c.log.Info("record canonicalized",
		zap.String("staged_record_id", rec.ID),
		zap.String("outcome", string(res.Outcome)),
		zap.String("mix_id", res.MixID),
		zap.Int("suggestions", res.Suggestions))
	return res, nil
}

func (c *Canonicalizer) process(ctx context.Context, rec *model.StagedRecord) (*Result, error) {
	if rec.RawTitle == "" {
		return nil, model.NewValidationError("staged record has no title")
	}

	res := &Result{StagedRecordID: rec.ID}

	extIDs := map[string]string{}
	if rec.ExternalID != "" {
		namespaced, err := extid.Encode(rec.Provider, rec.ExternalID)
		if err != nil {
			return nil, model.NewValidationError(err.Error())
		}
		extIDs[rec.Provider] = namespaced
	}

	// Identifier overlap is proof of a duplicate: merge and stop. No fuzzy
	// matching happens on this path.
	dup, err := c.resolver.FindDuplicateCanonical(ctx, model.EntityTypeMix, extIDs)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		entity, err := c.store.GetEntity(ctx, dup.EntityID)
		if err != nil {
			return nil, eris.Wrap(err, "canonical: load duplicate entity")
		}
		if err := dedupe.MergeStagedIntoEntity(entity, rec); err != nil {
			return nil, err
		}
		if err := c.store.UpdateEntity(ctx, entity); err != nil {
			return nil, eris.Wrap(err, "canonical: merge into duplicate")
		}
		res.Outcome = OutcomeMergedDuplicate
		res.MixID = entity.ID
		return res, nil
	}

	artistName, title := artistAndTitle(rec)

	if artistName != "" {
		artistID, ambiguous, err := c.resolveArtist(ctx, artistName)
		if err != nil {
			return nil, err
		}
		res.ArtistID = artistID
		res.Ambiguous += ambiguous
	}

	mixID, outcome, ambiguous, err := c.resolveMix(ctx, rec, title, res.ArtistID, extIDs)
	if err != nil {
		return nil, err
	}
	res.MixID = mixID
	res.Outcome = outcome
	res.Ambiguous += ambiguous

	suggestions, err := c.engine.SuggestContexts(ctx, rec)
	if err != nil {
		return nil, err
	}
	if c.opts.AutoVerify {
		for i := range suggestions {
			s := &suggestions[i]
			if !s.RequiresApproval && s.Confidence >= c.opts.AutoVerifyFloor {
				s.Status = model.SuggestionStatusApproved
				s.ReviewedBy = c.opts.VerifiedBy
			}
		}
	}
	if err := c.store.InsertSuggestions(ctx, suggestions); err != nil {
		return nil, eris.Wrap(err, "canonical: persist suggestions")
	}
	res.Suggestions = len(suggestions)

	return res, nil
}

// resolveArtist links the record's artist to an existing artist entity when
// the fuzzy match clears the artist threshold, otherwise creates a new
// unverified artist. Ambiguous-zone scores are persisted for audit.
func (c *Canonicalizer) resolveArtist(ctx context.Context, artistName string) (string, int, error) {
	candidates, err := c.store.ListCandidates(ctx, model.EntityTypeArtist)
	if err != nil {
		return "", 0, eris.Wrap(err, "canonical: list artist candidates")
	}

	result := match.FindBestMatch(artistName, candidates, match.ArtistThreshold)
	ambiguous, err := c.recordAmbiguous(ctx, model.EntityTypeArtist, artistName, result)
	if err != nil {
		return "", 0, err
	}

	if result.Match != nil {
		return result.Match.ID, ambiguous, nil
	}

	artist := &model.Entity{
		Type: model.EntityTypeArtist,
		Name: artistName,
	}
	if err := c.store.CreateEntity(ctx, artist); err != nil {
		return "", 0, eris.Wrap(err, "canonical: create artist")
	}
	c.log.Info("created unverified artist",
		zap.String("artist_id", artist.ID),
		zap.String("name", artistName))
	return artist.ID, ambiguous, nil
}

// resolveMix links the record to an existing mix when the title match clears
// the track threshold, merging the record's identifiers in; otherwise it
// creates a new unverified mix entity.
func (c *Canonicalizer) resolveMix(ctx context.Context, rec *model.StagedRecord, title, artistID string, extIDs map[string]string) (string, Outcome, int, error) {
	candidates, err := c.store.ListCandidates(ctx, model.EntityTypeMix)
	if err != nil {
		return "", "", 0, eris.Wrap(err, "canonical: list mix candidates")
	}

	result := match.FindBestMatch(title, candidates, match.TrackThreshold)
	ambiguous, err := c.recordAmbiguous(ctx, model.EntityTypeMix, title, result)
	if err != nil {
		return "", "", 0, err
	}

	if result.Match != nil {
		entity, err := c.store.GetEntity(ctx, result.Match.ID)
		if err != nil {
			return "", "", 0, eris.Wrap(err, "canonical: load matched mix")
		}
		if err := dedupe.MergeStagedIntoEntity(entity, rec); err != nil {
			return "", "", 0, err
		}
		if entity.ArtistID == "" {
			entity.ArtistID = artistID
		}
		if err := c.store.UpdateEntity(ctx, entity); err != nil {
			return "", "", 0, eris.Wrap(err, "canonical: update matched mix")
		}
		return entity.ID, OutcomeMatchedExisting, ambiguous, nil
	}

	mix := &model.Entity{
		Type:        model.EntityTypeMix,
		Name:        title,
		ExternalIDs: extIDs,
		ArtistID:    artistID,
		Metadata:    mixMetadata(rec),
	}
	if err := c.store.CreateEntity(ctx, mix); err != nil {
		return "", "", 0, eris.Wrap(err, "canonical: create mix")
	}
	return mix.ID, OutcomeCreatedNew, ambiguous, nil
}

func (c *Canonicalizer) recordAmbiguous(ctx context.Context, t model.EntityType, query string, result match.Result) (int, error) {
	if len(result.Ambiguous) == 0 {
		return 0, nil
	}
	matches := make([]model.AmbiguousMatch, 0, len(result.Ambiguous))
	for _, s := range result.Ambiguous {
		matches = append(matches, model.AmbiguousMatch{
			EntityType: t,
			Query:      query,
			Candidate:  s.Candidate.Text,
			EntityID:   s.Candidate.ID,
			Score:      s.Score,
		})
	}
	if err := c.store.InsertAmbiguousMatches(ctx, matches); err != nil {
		return 0, eris.Wrap(err, "canonical: persist ambiguous matches")
	}
	return len(matches), nil
}

// artistAndTitle prefers the provider-supplied artist field and falls back
// to splitting the raw title on its separator.
func artistAndTitle(rec *model.StagedRecord) (artist, title string) {
	title = rec.RawTitle
	if rec.RawArtist != "" {
		return rec.RawArtist, title
	}
	if a, t := normalize.SplitArtistTitle(rec.RawTitle); a != "" && t != "" {
		return a, rec.RawTitle
	}
	return "", title
}

func mixMetadata(rec *model.StagedRecord) map[string]string {
	meta := map[string]string{"source": rec.Provider}
	for k, v := range rec.Metadata {
		if v != "" {
			meta[k] = v
		}
	}
	if rec.UploadedAt != nil {
		meta["uploaded_at"] = rec.UploadedAt.UTC().Format(time.RFC3339)
	}
	return meta
}
