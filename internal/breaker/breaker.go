// Package breaker implements the per-trigger circuit breaker state machine.
// The functions are pure transitions over the persisted state; the store's
// atomic read-modify-write supplies the concurrency control.
package breaker

import (
	"time"

	"github.com/pveith/trix/pkg/models"
)

// Allow decides whether a dispatch may proceed and returns the state after
// the decision. While Open it flips to HalfOpen once the recovery timeout has
// elapsed; while HalfOpen it admits at most HalfOpenMaxCalls probes.
func Allow(cfg models.BreakerConfig, st models.BreakerState, now time.Time) (models.BreakerState, bool) {
	switch st.Phase {
	case models.BreakerOpen:
		if st.OpenedAt != nil && now.Sub(*st.OpenedAt) >= cfg.RecoveryTimeout() {
			st.Phase = models.BreakerHalfOpen
			st.HalfOpenCalls = 1
			return st, true
		}
		return st, false
	case models.BreakerHalfOpen:
		if st.HalfOpenCalls < cfg.HalfOpenMaxCalls {
			st.HalfOpenCalls++
			return st, true
		}
		return st, false
	default:
		return st, true
	}
}

// Success records a successful action outcome. A HalfOpen probe succeeding
// closes the breaker; a Closed success clears the consecutive failure count.
func Success(st models.BreakerState) models.BreakerState {
	st.Phase = models.BreakerClosed
	st.ConsecutiveFailures = 0
	st.OpenedAt = nil
	st.HalfOpenCalls = 0
	return st
}

// Failure records a terminally failed action outcome. A HalfOpen probe
// failing reopens immediately; Closed failures accumulate until the threshold
// opens the breaker.
func Failure(cfg models.BreakerConfig, st models.BreakerState, now time.Time) models.BreakerState {
	switch st.Phase {
	case models.BreakerHalfOpen:
		return open(st, now)
	case models.BreakerOpen:
		return st
	default:
		st.ConsecutiveFailures++
		if st.ConsecutiveFailures >= cfg.FailureThreshold {
			return open(st, now)
		}
		return st
	}
}

func open(st models.BreakerState, now time.Time) models.BreakerState {
	opened := now
	st.Phase = models.BreakerOpen
	st.OpenedAt = &opened
	st.HalfOpenCalls = 0
	return st
}
