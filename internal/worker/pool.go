package worker

import (
	"context"
	"sync"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/queue"
	"github.com/pveith/trix/pkg/models"
)

// Processor handles one dequeued action job. Decouples the pool from the
// dispatch and sink logic.
type Processor interface {
	Process(ctx context.Context, job models.ActionJob) error
}

// Pool runs a fixed set of goroutines that drain the job queue. Action
// ordering within a trigger is not preserved across workers; each job carries
// everything it needs, so workers never coordinate.
type Pool struct {
	concurrency int
	jobs        *queue.JobQueue
	processor   Processor
	wg          sync.WaitGroup
	cancel      context.CancelFunc
}

// NewPool creates a worker pool draining q with the given concurrency.
func NewPool(concurrency int, q *queue.JobQueue, proc Processor) *Pool {
	return &Pool{
		concurrency: concurrency,
		jobs:        q,
		processor:   proc,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	concurrency := p.concurrency
	if concurrency <= 0 {
		concurrency = 1
		logger.L().Warn("Worker concurrency not set, defaulting to 1")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	logger.L().Info("Starting worker pool", "concurrency", concurrency)
	p.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go p.worker(ctx, i)
	}
}

// Stop signals all workers to stop and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	logger.L().Info("Stopping worker pool")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.L().Info("Worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger.L().Debug("Worker started", "worker_id", id)

	for {
		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				logger.L().Debug("Worker stopping: context done", "worker_id", id)
			} else {
				logger.L().Debug("Worker stopping", "worker_id", id, "reason", err)
			}
			return
		}

		l := logger.L().With("worker_id", id, "job_id", job.ID, "trigger_id", job.TriggerID, "kind", job.Kind)
		l.Debug("Worker processing job")
		if err := p.processor.Process(ctx, job); err != nil {
			// Process records its own outcome; this is the last-resort log.
			l.Error("Job processing failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
