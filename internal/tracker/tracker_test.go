package tracker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

// testInitLogger initializes the logger for test execution, discarding output.
func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	err := logger.Init(settings, io.Discard)
	require.NoError(t, err, "Failed to initialize logger for test")
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tracker_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAdmit_OnlyOnce(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	trk := New(s)
	ctx := context.Background()

	admitted, err := trk.Admit(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, admitted)

	admitted, err = trk.Admit(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, admitted, "redelivery must be dropped")

	count, err := s.CountMarkers(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAdmit_ConcurrentExactlyOneWinner(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	trk := New(s)

	const racers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := trk.Admit(context.Background(), "evt-race")
			assert.NoError(t, err)
			wins <- admitted
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one admission wins the race")
}

func TestComplete_UpdatesMarker(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)
	trk := New(s)
	ctx := context.Background()

	admitted, err := trk.Admit(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, admitted)

	trk.Complete(ctx, "evt-1", 2, 4, 150*time.Millisecond)

	m, err := s.GetMarker(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.TriggersMatched)
	assert.Equal(t, 4, m.ActionsEnqueued)
	assert.Equal(t, int64(150), m.DurationMillis)
}

// countingProcessor records processed event ids and fails on demand.
type countingProcessor struct {
	mu        sync.Mutex
	processed []string
	failAll   bool
}

func (p *countingProcessor) ProcessEvent(_ context.Context, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return fmt.Errorf("processing unavailable")
	}
	p.processed = append(p.processed, eventID)
	return nil
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

func seedUnprocessedEvent(t *testing.T, s *store.Store, id string, age time.Duration) {
	t.Helper()
	require.NoError(t, s.InsertEvent(context.Background(), models.Event{
		ID:        id,
		ChainID:   1,
		Registry:  models.RegistryReputation,
		EventType: "NewFeedback",
		Timestamp: time.Now().Unix(),
		CreatedAt: time.Now().UTC().Add(-age),
	}))
}

func TestPoller_SweepRecoversOldEvents(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)

	seedUnprocessedEvent(t, s, "evt-old-1", time.Hour)
	seedUnprocessedEvent(t, s, "evt-old-2", time.Hour)
	seedUnprocessedEvent(t, s, "evt-fresh", 0) // inside the grace window

	proc := &countingProcessor{}
	p := NewPoller(s, proc, models.PollerSettings{
		Interval:    models.Duration{Duration: time.Minute},
		GraceWindow: models.Duration{Duration: 30 * time.Second},
		BatchSize:   100,
	})

	p.sweep(context.Background())

	assert.Equal(t, 2, proc.count())
	assert.NotContains(t, proc.processed, "evt-fresh", "grace window protects in-flight pushes")
}

func TestPoller_SweepRespectsBatchSize(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)

	for i := 0; i < 5; i++ {
		seedUnprocessedEvent(t, s, fmt.Sprintf("evt-%d", i), time.Hour)
	}

	proc := &countingProcessor{}
	p := NewPoller(s, proc, models.PollerSettings{
		Interval:    models.Duration{Duration: time.Minute},
		GraceWindow: models.Duration{Duration: time.Second},
		BatchSize:   3,
	})

	p.sweep(context.Background())
	assert.Equal(t, 3, proc.count())
}

func TestPoller_SweepAbortsAfterRepeatedFailures(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)

	for i := 0; i < maxSweepFailures+5; i++ {
		seedUnprocessedEvent(t, s, fmt.Sprintf("evt-%d", i), time.Hour)
	}

	proc := &countingProcessor{failAll: true}
	p := NewPoller(s, proc, models.PollerSettings{
		Interval:    models.Duration{Duration: time.Minute},
		GraceWindow: models.Duration{Duration: time.Second},
		BatchSize:   100,
	})

	// Must return (abort) rather than grind through the whole batch.
	p.sweep(context.Background())
	assert.Equal(t, 0, proc.count())
}

func TestPoller_StartStop(t *testing.T) {
	testInitLogger(t)
	s := testStore(t)

	p := NewPoller(s, &countingProcessor{}, models.PollerSettings{
		Interval:    models.Duration{Duration: 10 * time.Millisecond},
		GraceWindow: models.Duration{Duration: time.Second},
		BatchSize:   10,
	})

	p.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
