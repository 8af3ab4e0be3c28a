// Package engine is the reactive core: admit an event exactly once, find the
// triggers it satisfies, gate each through its circuit breaker, and dispatch
// the surviving actions.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pveith/trix/internal/breaker"
	"github.com/pveith/trix/internal/dispatch"
	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/matcher"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/internal/tracker"
	"github.com/pveith/trix/pkg/models"
)

// maxTriggersPerEvent caps the candidate set so one event cannot fan out
// without bound.
const maxTriggersPerEvent = 100

type Engine struct {
	store      *store.Store
	tracker    *tracker.Tracker
	matcher    *matcher.Matcher
	dispatcher *dispatch.Dispatcher
}

func New(s *store.Store, t *tracker.Tracker, m *matcher.Matcher, d *dispatch.Dispatcher) *Engine {
	return &Engine{store: s, tracker: t, matcher: m, dispatcher: d}
}

// ProcessEvent runs one event through the pipeline. Duplicate deliveries are
// dropped at admission with no error; both supply paths call this with the
// same semantics.
func (e *Engine) ProcessEvent(ctx context.Context, eventID string) error {
	start := time.Now()

	admitted, err := e.tracker.Admit(ctx, eventID)
	if err != nil {
		return fmt.Errorf("admit event %s: %w", eventID, err)
	}
	if !admitted {
		return nil
	}

	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		// The marker stays: a notification naming an event that does not
		// exist will never become processable.
		return fmt.Errorf("load admitted event: %w", err)
	}

	matches, err := e.matcher.Match(ctx, event, maxTriggersPerEvent)
	if err != nil {
		return fmt.Errorf("match event %s: %w", eventID, err)
	}

	var satisfied []models.Trigger
	for _, m := range matches {
		if m.Satisfied && m.Err == nil {
			satisfied = append(satisfied, m.Trigger)
		}
	}

	enqueued := 0
	if len(satisfied) > 0 {
		ids := make([]string, len(satisfied))
		for i, t := range satisfied {
			ids[i] = t.ID
		}
		actionsByTrigger, err := e.store.ListActions(ctx, ids)
		if err != nil {
			return fmt.Errorf("load actions for event %s: %w", eventID, err)
		}

		for _, t := range satisfied {
			enqueued += e.dispatchGated(ctx, t, event, actionsByTrigger[t.ID])
		}
	}

	duration := time.Since(start)
	e.tracker.Complete(ctx, eventID, len(satisfied), enqueued, duration)

	logger.L().Info("Event processed",
		"event_id", eventID, "registry", event.Registry, "event_type", event.EventType,
		"triggers_matched", len(satisfied), "actions_enqueued", enqueued,
		"duration", duration.String())
	return nil
}

// dispatchGated consults the trigger's circuit breaker and either dispatches
// the actions or records them as skipped. The gate decision and any phase
// transition it causes (Open to HalfOpen, probe accounting) are persisted in
// the same atomic update.
func (e *Engine) dispatchGated(ctx context.Context, t models.Trigger, event models.Event, actions []models.Action) int {
	allowed := false
	now := time.Now().UTC()
	err := e.store.MutateBreaker(ctx, t.ID, func(cfg models.BreakerConfig, st models.BreakerState) models.BreakerState {
		next, ok := breaker.Allow(cfg, st, now)
		allowed = ok
		return next
	})
	if err != nil {
		logger.L().Error("Circuit breaker gate failed, skipping dispatch",
			"trigger_id", t.ID, "event_id", event.ID, "error", err)
		return 0
	}

	if !allowed {
		e.dispatcher.RecordSkips(ctx, t, event, actions)
		return 0
	}
	return e.dispatcher.Dispatch(ctx, t, event, actions)
}
