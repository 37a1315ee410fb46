package canonical

import (
	"context"

	"github.com/cratedig/cratedig/internal/model"
)

// JobWorker runs canonicalization passes from the job queue. The payload
// names the staged record to process.
type JobWorker struct {
	c *Canonicalizer
}

func NewJobWorker(c *Canonicalizer) *JobWorker {
	return &JobWorker{c: c}
}

func (w *JobWorker) Type() model.WorkerType {
	return model.WorkerTypeCanonicalize
}

func (w *JobWorker) Execute(ctx context.Context, job *model.Job) error {
	id := job.Payload["staged_record_id"]
	if id == "" {
		return model.NewValidationError("job payload missing staged_record_id")
	}
	_, err := w.c.Canonicalize(ctx, id)
	return err
}
