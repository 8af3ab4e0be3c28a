package worker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/queue"
	"github.com/pveith/trix/pkg/models"
)

// testInitLogger initializes the logger for test execution, discarding output.
func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	err := logger.Init(settings, io.Discard)
	require.NoError(t, err, "Failed to initialize logger for test")
}

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
	done chan struct{} // closed-ish signal via counting
	want int
}

func newRecordingProcessor(want int) *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, want), want: want}
}

func (p *recordingProcessor) Process(_ context.Context, job models.ActionJob) error {
	p.mu.Lock()
	p.seen = append(p.seen, job.ID)
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func (p *recordingProcessor) waitAll(t *testing.T) {
	t.Helper()
	for i := 0; i < p.want; i++ {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, p.want)
		}
	}
}

func (p *recordingProcessor) jobIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func TestPool_ProcessesAllJobs(t *testing.T) {
	testInitLogger(t)

	q := queue.NewJobQueue(10, "")
	require.NoError(t, q.Start())

	proc := newRecordingProcessor(3)
	pool := NewPool(2, q, proc)
	pool.Start()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, q.Enqueue(models.ActionJob{ID: id, Kind: models.ActionNotify}))
	}

	proc.waitAll(t)
	pool.Stop()
	require.NoError(t, q.Stop())

	assert.ElementsMatch(t, []string{"job-1", "job-2", "job-3"}, proc.jobIDs())
}

func TestPool_StopWaitsForWorkers(t *testing.T) {
	testInitLogger(t)

	q := queue.NewJobQueue(10, "")
	require.NoError(t, q.Start())
	defer q.Stop()

	proc := newRecordingProcessor(1)
	pool := NewPool(0, q, proc) // zero concurrency falls back to one worker
	pool.Start()

	require.NoError(t, q.Enqueue(models.ActionJob{ID: "job-1"}))
	proc.waitAll(t)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool.Stop did not return")
	}
}
