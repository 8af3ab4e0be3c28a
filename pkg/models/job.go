package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionResult statuses. "retrying" rows are intermediate; terminal outcomes
// are "success" and "failed". "skipped" records a dispatch suppressed by an
// open circuit breaker (no sink attempt was made).
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRetrying = "retrying"
	StatusSkipped  = "skipped"
)

// ActionJob is a unit of sink work created when a satisfied trigger's action
// is dispatched. The job carries the full event so sinks can render templates
// without another store round trip.
type ActionJob struct {
	ID         string          `json:"id"`
	TriggerID  string          `json:"trigger_id"`
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	Priority   int             `json:"priority"`
	Config     json.RawMessage `json:"config"`
	Event      Event           `json:"event"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewActionJob creates a job for one action of a satisfied trigger.
func NewActionJob(action Action, event Event) ActionJob {
	return ActionJob{
		ID:         uuid.NewString(),
		TriggerID:  action.TriggerID,
		EventID:    event.ID,
		Kind:       action.Kind,
		Priority:   action.Priority,
		Config:     action.Config,
		Event:      event,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ActionResult is one row of the append-only action audit log. A logical
// action spans multiple rows sharing JobID when it is retried.
type ActionResult struct {
	ID         string        `json:"id"`
	JobID      string        `json:"job_id"`
	TriggerID  string        `json:"trigger_id"`
	EventID    string        `json:"event_id"`
	Kind       string        `json:"kind"`
	Status     string        `json:"status"`
	Duration   time.Duration `json:"duration"`
	RetryCount int           `json:"retry_count"`
	Error      string        `json:"error,omitempty"`
	Response   string        `json:"response,omitempty"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// ProcessedEventMarker is the sole source of truth for "already handled".
// At most one exists per event id, enforced by the store.
type ProcessedEventMarker struct {
	EventID           string    `json:"event_id"`
	ProcessedAt       time.Time `json:"processed_at"`
	ProcessorInstance string    `json:"processor_instance"`
	TriggersMatched   int       `json:"triggers_matched"`
	ActionsEnqueued   int       `json:"actions_enqueued"`
	DurationMillis    int64     `json:"duration_ms"`
}
