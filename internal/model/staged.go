package model

import "time"

// StagedStatus represents the lifecycle state of a staged record.
type StagedStatus string

const (
	StagedStatusPending       StagedStatus = "pending"
	StagedStatusProcessing    StagedStatus = "processing"
	StagedStatusCanonicalized StagedStatus = "canonicalized"
	StagedStatusFailed        StagedStatus = "failed"
)

// StagedRecord is a source-ingested, not-yet-canonical unit of data (a mix
// or a track). Fetch workers create it; only the canonicalization
// orchestrator mutates it afterwards.
type StagedRecord struct {
	ID              string            `json:"id"`
	Provider        string            `json:"provider"`
	SourceURL       string            `json:"source_url"`
	ExternalID      string            `json:"external_id,omitempty"`
	RawTitle        string            `json:"raw_title,omitempty"`
	RawDescription  string            `json:"raw_description,omitempty"`
	RawArtist       string            `json:"raw_artist,omitempty"`
	ChannelID       string            `json:"channel_id,omitempty"`
	UploadedAt      *time.Time        `json:"uploaded_at,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Status          StagedStatus      `json:"status"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FetchResult summarizes one fetch run for a provider.
type FetchResult struct {
	Provider          string `json:"provider"`
	MixesAdded        int    `json:"mixes_added"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	Failures          int    `json:"failures"`
}
