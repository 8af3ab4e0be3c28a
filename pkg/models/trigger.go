package models

import (
	"encoding/json"
	"time"
)

// Condition kinds. Threshold, equality and membership are stateless (pure
// functions of the event); EMA and rate count fold accumulated per-trigger
// state before comparing.
const (
	ConditionThreshold  = "threshold"
	ConditionEquality   = "equality"
	ConditionMembership = "membership"
	ConditionEMA        = "ema_threshold"
	ConditionRateCount  = "rate_count"
)

// Action kinds handled by the built-in sinks.
const (
	ActionWebhook = "webhook"
	ActionNotify  = "notify"
	ActionTool    = "tool"
)

// Trigger is a user-authored rule. The automation core never creates or
// deletes triggers; it only mutates the embedded breaker state and the
// trigger's analytic state.
type Trigger struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	// ChainID nil means wildcard: the trigger matches events from any chain.
	ChainID      *int64        `json:"chain_id,omitempty"`
	Registry     string        `json:"registry"`
	Enabled      bool          `json:"enabled"`
	Stateful     bool          `json:"is_stateful"`
	Breaker      BreakerConfig `json:"circuit_breaker_config"`
	BreakerState BreakerState  `json:"circuit_breaker_state"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Condition is one predicate in a trigger's match logic. All conditions of a
// trigger must hold for the trigger to be satisfied.
type Condition struct {
	ID        string          `json:"id"`
	TriggerID string          `json:"trigger_id"`
	Kind      string          `json:"kind"`
	Field     string          `json:"field"`
	Operator  string          `json:"operator"`
	Value     string          `json:"value"`
	Config    json.RawMessage `json:"config,omitempty"` // kind-specific extras
	CreatedAt time.Time       `json:"created_at"`
}

// Stateful reports whether evaluating this condition folds per-trigger state.
func (c Condition) Stateful() bool {
	return c.Kind == ConditionEMA || c.Kind == ConditionRateCount
}

// Action is a configured side effect attached to a trigger. Actions dispatch
// ascending by Priority; equal priorities break ties on ID, which is assigned
// monotonically at creation, so order is stable across runs.
type Action struct {
	ID        int64           `json:"id"`
	TriggerID string          `json:"trigger_id"`
	Kind      string          `json:"kind"`
	Priority  int             `json:"priority"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

// TriggerState is the analytic state blob of one stateful trigger. The blob
// maps condition id to that condition's accumulator so several stateful
// conditions on the same trigger do not clobber each other.
type TriggerState struct {
	TriggerID   string          `json:"trigger_id"`
	State       json.RawMessage `json:"state"`
	LastUpdated time.Time       `json:"last_updated"`
}

// BreakerPhase is the circuit breaker state machine phase.
type BreakerPhase string

const (
	BreakerClosed   BreakerPhase = "closed"
	BreakerOpen     BreakerPhase = "open"
	BreakerHalfOpen BreakerPhase = "half_open"
)

// BreakerConfig is the per-trigger circuit breaker configuration, stored as
// JSON on the trigger row.
type BreakerConfig struct {
	// Consecutive action failures before the breaker opens.
	FailureThreshold int `json:"failure_threshold"`
	// Seconds to wait in Open before probing recovery.
	RecoveryTimeoutSeconds int64 `json:"recovery_timeout_seconds"`
	// Probes allowed while HalfOpen.
	HalfOpenMaxCalls int `json:"half_open_max_calls"`
}

// DefaultBreakerConfig returns the documented defaults: 10 failures,
// 1 hour recovery, a single half-open probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:       10,
		RecoveryTimeoutSeconds: 3600,
		HalfOpenMaxCalls:       1,
	}
}

// RecoveryTimeout returns the recovery window as a duration.
func (c BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSeconds) * time.Second
}

// BreakerState is the mutable circuit breaker state embedded in the trigger
// row. Updated only through the store's atomic read-modify-write.
type BreakerState struct {
	Phase               BreakerPhase `json:"phase"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
	HalfOpenCalls       int          `json:"half_open_calls"`
}

// DefaultBreakerState is the initial Closed state.
func DefaultBreakerState() BreakerState {
	return BreakerState{Phase: BreakerClosed}
}
