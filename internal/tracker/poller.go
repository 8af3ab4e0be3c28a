package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

// maxSweepFailures aborts a sweep once this many events in a row fail to
// process; a systemic fault (store down, queue stopped) should not burn
// through the whole batch.
const maxSweepFailures = 10

// Processor evaluates one admitted-or-admittable event by id.
type Processor interface {
	ProcessEvent(ctx context.Context, eventID string) error
}

// Poller is the fallback supply path: it periodically sweeps for events that
// have no processed-event marker and feeds them to the processor. The grace
// window keeps it from racing push notifications still in flight.
type Poller struct {
	store     *store.Store
	processor Processor
	settings  models.PollerSettings

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(s *store.Store, proc Processor, settings models.PollerSettings) *Poller {
	return &Poller{store: s, processor: proc, settings: settings}
}

// Start launches the sweep loop.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	logger.L().Info("Starting fallback poller",
		"interval", p.settings.Interval.Duration.String(),
		"grace_window", p.settings.GraceWindow.Duration.String(),
		"batch_size", p.settings.BatchSize)

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.L().Info("Fallback poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.settings.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep processes one batch of unprocessed events, oldest first. Events
// admitted by a concurrent push mid-sweep are dropped by admission, not here.
func (p *Poller) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.settings.GraceWindow.Duration)
	notifications, err := p.store.ListUnprocessed(ctx, cutoff, p.settings.BatchSize)
	if err != nil {
		logger.L().Error("Poller sweep query failed", "error", err)
		return
	}
	if len(notifications) == 0 {
		return
	}

	logger.L().Info("Poller recovering unprocessed events", "count", len(notifications))

	recovered := 0
	consecutiveFailures := 0
	for _, n := range notifications {
		if ctx.Err() != nil {
			return
		}
		if err := p.processor.ProcessEvent(ctx, n.EventID); err != nil {
			consecutiveFailures++
			logger.L().Error("Poller failed to process event",
				"event_id", n.EventID, "consecutive_failures", consecutiveFailures, "error", err)
			if consecutiveFailures >= maxSweepFailures {
				logger.L().Error("Aborting sweep after repeated failures", "recovered", recovered)
				return
			}
			continue
		}
		consecutiveFailures = 0
		recovered++
	}

	logger.L().Info("Poller sweep complete", "recovered", recovered)
}
