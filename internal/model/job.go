package model

import "time"

// JobStatus represents the current state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// WorkerType selects which worker executes a job.
type WorkerType string

const (
	WorkerTypeFetch        WorkerType = "fetch"
	WorkerTypeCanonicalize WorkerType = "canonicalize"
)

// Job is a unit of queued background work. Only the job processor mutates
// it after creation; pending→running happens exclusively through an atomic
// lease on the backing store.
type Job struct {
	ID           string            `json:"id"`
	WorkerType   WorkerType        `json:"worker_type"`
	Payload      map[string]string `json:"payload,omitempty"`
	Status       JobStatus         `json:"status"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	LastRun      *time.Time        `json:"last_run,omitempty"`
	NextRun      time.Time         `json:"next_run"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ExecutionResult holds the outcome of one job execution.
type ExecutionResult struct {
	Summary           string `json:"summary,omitempty"`
	MixesAdded        int    `json:"mixes_added,omitempty"`
	DuplicatesSkipped int    `json:"duplicates_skipped,omitempty"`
}

// JobStats aggregates job counts by status.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
