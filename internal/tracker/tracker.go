// Package tracker guards exactly-once event processing. Admission is a
// single conditional insert of the processed-event marker; whichever supply
// path (push or poll) admits first wins and every later attempt is a no-op.
package tracker

import (
	"context"
	"os"
	"time"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/store"
)

type Tracker struct {
	store    *store.Store
	instance string
}

func New(s *store.Store) *Tracker {
	instance, err := os.Hostname()
	if err != nil {
		instance = "unknown"
	}
	return &Tracker{store: s, instance: instance}
}

// Admit claims the event for processing. Returns false when another admission
// already holds the marker; the caller must then drop the event silently.
func (t *Tracker) Admit(ctx context.Context, eventID string) (bool, error) {
	admitted, err := t.store.MarkProcessed(ctx, eventID, t.instance)
	if err != nil {
		return false, err
	}
	if !admitted {
		logger.L().Debug("Event already admitted, dropping", "event_id", eventID)
	}
	return admitted, nil
}

// Complete records the evaluation stats on the marker Admit inserted.
func (t *Tracker) Complete(ctx context.Context, eventID string, matched, enqueued int, d time.Duration) {
	if err := t.store.FinishProcessed(ctx, eventID, matched, enqueued, d); err != nil {
		logger.L().Error("Failed to record processing stats", "event_id", eventID, "error", err)
	}
}
