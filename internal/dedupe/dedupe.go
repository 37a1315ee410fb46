// Package dedupe decides whether incoming records are duplicates of staged
// or canonical data, and merges duplicate payloads by source priority.
// Duplicate detection is identifier-based only: a shared external ID is
// proof, anything less is left to fuzzy matching.
package dedupe

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/extid"
	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

// Duplicate identifies the canonical entity an incoming record collides
// with, and the provider key whose identifier proved the collision.
type Duplicate struct {
	EntityID   string
	MatchedKey string
}

// Resolver answers duplicate questions against the store.
type Resolver struct {
	store store.Store
	log   *zap.Logger
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{
		store: s,
		log:   zap.L().With(zap.String("component", "dedupe")),
	}
}

// IsDuplicateStaged reports whether rec is already staged, either by exact
// source URL or by (provider, external ID). The URL check runs first; it is
// indexed and catches the common re-poll case.
func (r *Resolver) IsDuplicateStaged(ctx context.Context, rec *model.StagedRecord) (bool, error) {
	existing, err := r.store.FindStagedBySourceURL(ctx, rec.SourceURL)
	if err != nil {
		return false, eris.Wrap(err, "dedupe: check staged url")
	}
	if existing != nil {
		return true, nil
	}

	if rec.ExternalID == "" {
		return false, nil
	}
	existing, err = r.store.FindStagedByExternalID(ctx, rec.Provider, rec.ExternalID)
	if err != nil {
		return false, eris.Wrap(err, "dedupe: check staged external id")
	}
	return existing != nil, nil
}

// FindDuplicateCanonical scans canonical entities of the given type for an
// external-ID overlap with extIDs. Sets are keyed by provider name with
// namespaced identifier values ("youtube" -> "yt:..."), so a match means the
// same upload on the same platform.
func (r *Resolver) FindDuplicateCanonical(ctx context.Context, t model.EntityType, extIDs map[string]string) (*Duplicate, error) {
	if len(extIDs) == 0 {
		return nil, nil
	}

	entities, err := r.store.ListEntitiesByType(ctx, t)
	if err != nil {
		return nil, eris.Wrap(err, "dedupe: list entities")
	}

	for i := range entities {
		e := &entities[i]
		for key, id := range extIDs {
			if e.ExternalIDs[key] == id && id != "" {
				r.log.Debug("canonical duplicate found",
					zap.String("entity_id", e.ID),
					zap.String("matched_key", key))
				return &Duplicate{EntityID: e.ID, MatchedKey: key}, nil
			}
		}
	}
	return nil, nil
}

// sourceKey is the metadata key recording which provider last supplied an
// entity's scalar fields.
const sourceKey = "source"

// MergeStagedIntoEntity folds a staged record into an existing entity.
// The record's external ID joins the entity's set under its provider key,
// replacing any identifier that provider supplied before (one identifier per
// provider, right-biased). Scalar fields and metadata follow source
// priority: a higher-priority provider overwrites, a lower-priority one only
// fills gaps. The merge is deterministic and idempotent.
func MergeStagedIntoEntity(e *model.Entity, rec *model.StagedRecord) error {
	if rec.ExternalID != "" {
		namespaced, err := extid.Encode(rec.Provider, rec.ExternalID)
		if err != nil {
			return eris.Wrap(err, "dedupe: encode external id")
		}
		e.ExternalIDs = extid.Merge(e.ExternalIDs, map[string]string{rec.Provider: namespaced})
	}

	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}

	incoming := extid.Priority(rec.Provider)
	current := extid.Priority(e.Metadata[sourceKey])
	wins := incoming > current

	if rec.RawTitle != "" && (wins || e.Name == "") {
		e.Name = rec.RawTitle
	}
	for k, v := range rec.Metadata {
		if v == "" {
			continue
		}
		if _, present := e.Metadata[k]; wins || !present {
			e.Metadata[k] = v
		}
	}
	if wins || e.Metadata[sourceKey] == "" {
		e.Metadata[sourceKey] = rec.Provider
	}
	return nil
}
