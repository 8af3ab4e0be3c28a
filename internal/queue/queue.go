package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/pkg/models"
)

const defaultCapacity = 1000

// JobQueue is the bounded FIFO of action jobs waiting for a sink worker.
// Dispatch enqueues; the worker pool dequeues. When a persistence path is
// configured, jobs still queued at shutdown are written to disk and reloaded
// on the next start.
type JobQueue struct {
	queue       chan models.ActionJob
	capacity    int
	persistPath string
	mu          sync.Mutex // serializes load/save against stop
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewJobQueue creates a job queue with the given capacity. Non-positive
// capacities fall back to the default.
func NewJobQueue(capacity int, persistPath string) *JobQueue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &JobQueue{
		queue:       make(chan models.ActionJob, capacity),
		capacity:    capacity,
		persistPath: persistPath,
		stopChan:    make(chan struct{}),
	}
}

// Enqueue adds a job to the queue, blocking while the buffer is full. The
// blocking is deliberate: it backpressures event evaluation instead of
// dropping work. Returns an error once the queue has been stopped.
func (q *JobQueue) Enqueue(job models.ActionJob) error {
	select {
	case <-q.stopChan:
		return fmt.Errorf("job queue is stopped, cannot enqueue job %s", job.ID)
	default:
	}
	select {
	case q.queue <- job:
		logger.L().Debug("Job enqueued", "job_id", job.ID, "trigger_id", job.TriggerID, "kind", job.Kind)
		return nil
	case <-q.stopChan:
		return fmt.Errorf("job queue is stopped, cannot enqueue job %s", job.ID)
	}
}

// Dequeue returns the next job, blocking until one is available, the context
// is cancelled, or the queue is stopped and drained.
func (q *JobQueue) Dequeue(ctx context.Context) (models.ActionJob, error) {
	select {
	case job := <-q.queue:
		return job, nil
	case <-ctx.Done():
		return models.ActionJob{}, ctx.Err()
	case <-q.stopChan:
		// Drain whatever was buffered before the stop signal.
		select {
		case job := <-q.queue:
			return job, nil
		default:
			return models.ActionJob{}, fmt.Errorf("job queue stopped")
		}
	}
}

// Len returns the number of buffered jobs.
func (q *JobQueue) Len() int {
	return len(q.queue)
}

// Start loads any persisted jobs from a previous shutdown.
func (q *JobQueue) Start() error {
	if err := q.loadState(); err != nil {
		logger.L().Error("Failed to load persisted jobs, starting empty", "error", err)
	}
	logger.L().Info("Job queue started", "capacity", q.capacity, "buffered", len(q.queue))
	return nil
}

// Stop rejects further enqueues and persists the jobs still buffered.
func (q *JobQueue) Stop() error {
	var err error
	q.stopOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		logger.L().Info("Stopping job queue")
		close(q.stopChan)
		err = q.saveState()
		close(q.queue)
	})
	if err != nil {
		return fmt.Errorf("persist queued jobs: %w", err)
	}
	return nil
}

func (q *JobQueue) loadState() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.persistPath == "" {
		return nil
	}

	data, err := os.ReadFile(q.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read queue state file %q: %w", q.persistPath, err)
	}
	if len(data) == 0 {
		return nil
	}

	var jobs []models.ActionJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("unmarshal queue state from %q: %w", q.persistPath, err)
	}

	for _, job := range jobs {
		select {
		case q.queue <- job:
		default:
			return fmt.Errorf("load job %s: queue full", job.ID)
		}
	}

	logger.L().Info("Loaded persisted jobs", "count", len(jobs), "path", q.persistPath)
	return nil
}

// saveState drains the buffer and writes the jobs to disk atomically. Called
// with the mutex held after stopChan is closed.
func (q *JobQueue) saveState() error {
	if q.persistPath == "" {
		return nil
	}

	jobs := make([]models.ActionJob, 0, len(q.queue))
	for {
		select {
		case job := <-q.queue:
			jobs = append(jobs, job)
		default:
			data, err := json.MarshalIndent(jobs, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal queue state: %w", err)
			}
			tempFile := q.persistPath + ".tmp"
			if err := os.WriteFile(tempFile, data, 0644); err != nil {
				return fmt.Errorf("write queue state file %q: %w", tempFile, err)
			}
			if err := os.Rename(tempFile, q.persistPath); err != nil {
				_ = os.Remove(tempFile)
				return fmt.Errorf("rename queue state file to %q: %w", q.persistPath, err)
			}
			logger.L().Info("Persisted queued jobs", "count", len(jobs), "path", q.persistPath)
			return nil
		}
	}
}
