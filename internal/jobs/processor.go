// Package jobs runs the polling job processor. Jobs are leased atomically
// from the store, dispatched to a registered worker, and acknowledged as
// completed, retried with exponential backoff, or failed terminally.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

// Worker executes one kind of job.
type Worker interface {
	Type() model.WorkerType
	Execute(ctx context.Context, job *model.Job) error
}

// Config tunes the processor loop.
type Config struct {
	// PollInterval is the sleep between polls when the queue is empty.
	PollInterval time.Duration

	// BackoffBase seeds the retry delay: base doubles per prior attempt.
	BackoffBase time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 6 * time.Hour
	}
	return c
}

// Processor polls the job queue and dispatches to workers by type.
type Processor struct {
	store   store.Store
	cfg     Config
	workers map[model.WorkerType]Worker
	log     *zap.Logger
}

func NewProcessor(s store.Store, cfg Config) *Processor {
	return &Processor{
		store:   s,
		cfg:     cfg.withDefaults(),
		workers: map[model.WorkerType]Worker{},
		log:     zap.L().With(zap.String("component", "job_processor")),
	}
}

// Register adds a worker. Must happen before Run.
func (p *Processor) Register(w Worker) {
	p.workers[w.Type()] = w
}

// Run polls until ctx is cancelled. Jobs are drained back to back; the poll
// interval only applies when the queue comes up empty.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("job processor started",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Int("workers", len(p.workers)))

	for {
		if ctx.Err() != nil {
			p.log.Info("job processor stopping")
			return nil
		}

		processed, err := p.RunOnce(ctx)
		if err != nil {
			p.log.Error("job processing pass failed", zap.Error(err))
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			p.log.Info("job processor stopping")
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// RunOnce leases and executes at most one job. It reports whether a job was
// leased. Worker errors are handled internally (retry/fail bookkeeping) and
// not returned; only store failures surface.
func (p *Processor) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.store.LeaseNextJob(ctx)
	if err != nil {
		return false, eris.Wrap(err, "jobs: lease")
	}
	if job == nil {
		return false, nil
	}

	log := p.log.With(
		zap.String("job_id", job.ID),
		zap.String("worker_type", string(job.WorkerType)),
		zap.Int("attempts", job.Attempts))

	worker, ok := p.workers[job.WorkerType]
	if !ok {
		// No worker can ever run this; retrying would loop forever.
		log.Error("no worker registered for job type")
		return true, p.store.MarkJobFailed(ctx, job.ID, job.Attempts+1,
			fmt.Sprintf("no worker registered for type %q", job.WorkerType))
	}

	execErr := p.execute(ctx, worker, job)
	if execErr == nil {
		log.Info("job completed")
		return true, p.store.CompleteJob(ctx, job.ID)
	}

	// Shutdown mid-job: put it back untouched so another instance (or the
	// next start) picks it up. The run context is dead, so the revert gets
	// its own deadline.
	if ctx.Err() != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Warn("releasing job on shutdown")
		return true, p.store.ReleaseJob(releaseCtx, job.ID)
	}

	attempts := job.Attempts + 1

	var verr *model.ValidationError
	if errors.As(execErr, &verr) {
		log.Error("job failed validation, not retrying", zap.Error(execErr))
		return true, p.store.MarkJobFailed(ctx, job.ID, attempts, execErr.Error())
	}

	if attempts >= job.MaxAttempts {
		log.Error("job exhausted attempts", zap.Error(execErr))
		return true, p.store.MarkJobFailed(ctx, job.ID, attempts, execErr.Error())
	}

	nextRun := time.Now().UTC().Add(p.backoff(job.Attempts))
	log.Warn("job failed, scheduling retry",
		zap.Error(execErr),
		zap.Time("next_run", nextRun))
	return true, p.store.RetryJob(ctx, job.ID, attempts, nextRun, execErr.Error())
}

// execute runs the worker with panic containment: a panicking worker fails
// its job, it does not take down the processor.
func (p *Processor) execute(ctx context.Context, w Worker, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("jobs: worker panicked: %v", r)
		}
	}()
	return w.Execute(ctx, job)
}

// backoff returns the delay before the next attempt: base doubled per prior
// attempt, capped.
func (p *Processor) backoff(priorAttempts int) time.Duration {
	d := p.cfg.BackoffBase
	for range priorAttempts {
		d *= 2
		if d >= p.cfg.MaxBackoff {
			return p.cfg.MaxBackoff
		}
	}
	return min(d, p.cfg.MaxBackoff)
}
