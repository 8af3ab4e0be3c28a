package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pveith/trix/internal/retry"
	"github.com/pveith/trix/internal/sink"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

// scriptedSink fails a set number of times before succeeding.
type scriptedSink struct {
	kind     string
	failures int
	err      error
	calls    int
}

func (s *scriptedSink) Kind() string { return s.kind }

func (s *scriptedSink) Execute(_ context.Context, _ models.ActionJob) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", s.err
	}
	return "ok", nil
}

func fastRetryPolicy(maxRetries int) *models.RetryPolicy {
	delay := 0.001
	backoff := 1.0
	return &models.RetryPolicy{MaxRetries: &maxRetries, Delay: &delay, BackoffFactor: &backoff}
}

func runnerFixture(t *testing.T, s *store.Store, target sink.Sink, maxRetries int) *Runner {
	t.Helper()
	return NewRunner(s, sink.NewRegistry(target), time.Second, fastRetryPolicy(maxRetries))
}

func testJob(kind string) models.ActionJob {
	return models.ActionJob{
		ID:        "job-1",
		TriggerID: "trg-1",
		EventID:   "evt-1",
		Kind:      kind,
		Config:    json.RawMessage(`{}`),
		Event:     dispatchEvent(),
	}
}

func TestRunner_SuccessRecordsResultAndResetsBreaker(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	seedEnabledTrigger(t, s, "trg-1")

	// Start with accumulated failures; success must clear them.
	require.NoError(t, s.MutateBreaker(context.Background(), "trg-1",
		func(_ models.BreakerConfig, st models.BreakerState) models.BreakerState {
			st.ConsecutiveFailures = 5
			return st
		}))

	target := &scriptedSink{kind: models.ActionWebhook}
	r := runnerFixture(t, s, target, 3)

	require.NoError(t, r.Process(context.Background(), testJob(models.ActionWebhook)))

	results, err := s.ListActionResults(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusSuccess, results[0].Status)
	assert.Equal(t, "ok", results[0].Response)
	assert.Equal(t, 0, results[0].RetryCount)

	trigger, err := s.GetTrigger(context.Background(), "trg-1")
	require.NoError(t, err)
	assert.Equal(t, 0, trigger.BreakerState.ConsecutiveFailures)
}

func TestRunner_RetriesWriteIntermediateRows(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	seedEnabledTrigger(t, s, "trg-1")

	target := &scriptedSink{kind: models.ActionWebhook, failures: 2, err: fmt.Errorf("HTTP 503")}
	r := runnerFixture(t, s, target, 3)

	require.NoError(t, r.Process(context.Background(), testJob(models.ActionWebhook)))
	assert.Equal(t, 3, target.calls)

	results, err := s.ListActionResults(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, results, 3, "two retrying rows plus the terminal success")

	statuses := map[string]int{}
	for _, row := range results {
		statuses[row.Status]++
	}
	assert.Equal(t, 2, statuses[models.StatusRetrying])
	assert.Equal(t, 1, statuses[models.StatusSuccess])
}

func TestRunner_ExhaustedRetriesFeedBreakerFailure(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	seedEnabledTrigger(t, s, "trg-1")

	target := &scriptedSink{kind: models.ActionWebhook, failures: 100, err: fmt.Errorf("HTTP 503")}
	r := runnerFixture(t, s, target, 2)

	err := r.Process(context.Background(), testJob(models.ActionWebhook))
	require.Error(t, err)
	assert.Equal(t, 3, target.calls, "initial attempt plus two retries")

	results, listErr := s.ListActionResults(context.Background(), "evt-1")
	require.NoError(t, listErr)

	var terminal *models.ActionResult
	for i := range results {
		if results[i].Status == models.StatusFailed {
			terminal = &results[i]
		}
	}
	require.NotNil(t, terminal, "a terminal failed row must exist")
	assert.Equal(t, 2, terminal.RetryCount)

	trigger, err := s.GetTrigger(context.Background(), "trg-1")
	require.NoError(t, err)
	assert.Equal(t, 1, trigger.BreakerState.ConsecutiveFailures, "one logical failure regardless of attempts")
}

func TestRunner_PermanentErrorSkipsRetries(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	seedEnabledTrigger(t, s, "trg-1")

	target := &scriptedSink{kind: models.ActionWebhook, failures: 100, err: retry.Permanent(fmt.Errorf("HTTP 400"))}
	r := runnerFixture(t, s, target, 5)

	err := r.Process(context.Background(), testJob(models.ActionWebhook))
	require.Error(t, err)
	assert.Equal(t, 1, target.calls, "permanent failures must not retry")

	results, listErr := s.ListActionResults(context.Background(), "evt-1")
	require.NoError(t, listErr)
	require.Len(t, results, 1, "no retrying rows for permanent failures")
	assert.Equal(t, models.StatusFailed, results[0].Status)
}

func TestRunner_UnknownKindFailsTerminally(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	seedEnabledTrigger(t, s, "trg-1")

	r := runnerFixture(t, s, &scriptedSink{kind: models.ActionWebhook}, 3)

	err := r.Process(context.Background(), testJob("teleport"))
	require.Error(t, err)

	results, listErr := s.ListActionResults(context.Background(), "evt-1")
	require.NoError(t, listErr)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "no sink registered")
}
