package model

import "time"

// EntityType identifies a kind of canonical catalog entity.
type EntityType string

const (
	EntityTypeMix     EntityType = "mix"
	EntityTypeTrack   EntityType = "track"
	EntityTypeArtist  EntityType = "artist"
	EntityTypeContext EntityType = "context"
	EntityTypeVenue   EntityType = "venue"
)

// ContextType categorizes a context entity (festival, radio show, publisher,
// label, promoter, series, stage).
type ContextType string

const (
	ContextTypeFestival  ContextType = "festival"
	ContextTypeRadioShow ContextType = "radio_show"
	ContextTypePublisher ContextType = "publisher"
	ContextTypeLabel     ContextType = "label"
	ContextTypePromoter  ContextType = "promoter"
	ContextTypeSeries    ContextType = "series"
	ContextTypeStage     ContextType = "stage"
)

// Entity is an authoritative catalog record. Entities created by the
// canonicalization pipeline start unverified; the external review workflow
// flips IsVerified. ExternalIDs maps provider name to the namespaced
// identifier ("youtube" -> "yt:abc123"), one identifier per provider.
type Entity struct {
	ID          string            `json:"id"`
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ArtistID    string            `json:"artist_id,omitempty"`
	VenueID     string            `json:"venue_id,omitempty"`
	ContextIDs  []string          `json:"context_ids,omitempty"`
	IsVerified  bool              `json:"is_verified"`
	VerifiedBy  string            `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time        `json:"verified_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MatchCandidate is a read-only projection of an Entity used during fuzzy
// scoring. Never persisted.
type MatchCandidate struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AmbiguousMatch records a fuzzy match that scored inside the ambiguous zone
// and was neither accepted nor created as new. Kept queryable for audit.
type AmbiguousMatch struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Query      string     `json:"query"`
	Candidate  string     `json:"candidate"`
	EntityID   string     `json:"entity_id"`
	Score      float64    `json:"score"`
	CreatedAt  time.Time  `json:"created_at"`
}
