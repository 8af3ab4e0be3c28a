// Package dispatch turns satisfied triggers into queued action jobs and runs
// the jobs through their sinks. It owns the audit log writes and feeds action
// outcomes back into the per-trigger circuit breaker.
package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/queue"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

// Dispatcher enqueues the actions of satisfied triggers.
type Dispatcher struct {
	store *store.Store
	jobs  *queue.JobQueue
}

func NewDispatcher(s *store.Store, q *queue.JobQueue) *Dispatcher {
	return &Dispatcher{store: s, jobs: q}
}

// Dispatch enqueues one job per action of a satisfied trigger, ascending by
// priority with ties broken by creation order. The enabled flag is re-checked
// first so a trigger disabled after candidate selection schedules nothing.
// A failed enqueue is logged and skipped; the remaining actions still run.
// Returns the number of jobs enqueued.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger models.Trigger, event models.Event, actions []models.Action) int {
	if len(actions) == 0 {
		return 0
	}

	enabled, err := d.store.TriggerEnabled(ctx, trigger.ID)
	if err != nil {
		logger.L().Error("Enabled re-check failed, skipping dispatch",
			"trigger_id", trigger.ID, "event_id", event.ID, "error", err)
		return 0
	}
	if !enabled {
		logger.L().Info("Trigger disabled since matching, skipping dispatch",
			"trigger_id", trigger.ID, "event_id", event.ID)
		return 0
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority < actions[j].Priority
		}
		return actions[i].ID < actions[j].ID
	})

	enqueued := 0
	for _, action := range actions {
		job := models.NewActionJob(action, event)
		if err := d.jobs.Enqueue(job); err != nil {
			logger.L().Error("Failed to enqueue action job",
				"trigger_id", trigger.ID, "event_id", event.ID, "action_id", action.ID, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued
}

// RecordSkips writes one skipped audit row per action of a trigger whose
// dispatch was suppressed by an open circuit breaker. No sink runs.
func (d *Dispatcher) RecordSkips(ctx context.Context, trigger models.Trigger, event models.Event, actions []models.Action) {
	for _, action := range actions {
		result := models.ActionResult{
			TriggerID:  trigger.ID,
			EventID:    event.ID,
			Kind:       action.Kind,
			Status:     models.StatusSkipped,
			Error:      "circuit breaker open",
			ExecutedAt: time.Now().UTC(),
		}
		if err := d.store.AppendActionResult(ctx, result); err != nil {
			logger.L().Error("Failed to record skipped action",
				"trigger_id", trigger.ID, "event_id", event.ID, "error", err)
		}
	}
	logger.L().Info("Dispatch suppressed by open circuit breaker",
		"trigger_id", trigger.ID, "event_id", event.ID, "actions_skipped", len(actions))
}
