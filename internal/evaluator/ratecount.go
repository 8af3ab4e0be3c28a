package evaluator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pveith/trix/pkg/models"
)

// maxRateTimestamps bounds the accumulator of a rate_count condition so a
// high-volume trigger cannot grow its state blob without limit.
const maxRateTimestamps = 10000

// rateState is the accumulator of one rate_count condition: the unix seconds
// of every observation still inside the window.
type rateState struct {
	Timestamps []int64 `json:"timestamps"`
}

type rateConfig struct {
	WindowSeconds  int64 `json:"window_seconds"`
	ResetOnTrigger bool  `json:"reset_on_trigger"`
}

// foldRateCount counts observations inside a sliding window. The condition is
// satisfied when the count after this observation reaches the threshold in
// Value. With reset_on_trigger the window empties on satisfaction so the next
// firing needs a full fresh burst.
func foldRateCount(cond models.Condition, event models.Event, prev json.RawMessage, now time.Time) (bool, json.RawMessage, error) {
	threshold, err := strconv.ParseInt(cond.Value, 10, 64)
	if err != nil || threshold < 1 {
		return false, nil, fmt.Errorf("rate condition %s: value %q is not a positive count", cond.ID, cond.Value)
	}

	var cfg rateConfig
	if len(cond.Config) > 0 {
		if err := json.Unmarshal(cond.Config, &cfg); err != nil {
			return false, nil, fmt.Errorf("rate condition %s: bad config: %w", cond.ID, err)
		}
	}
	if cfg.WindowSeconds < 1 {
		return false, nil, fmt.Errorf("rate condition %s: window_seconds must be positive", cond.ID)
	}

	var st rateState
	if len(prev) > 0 {
		if err := json.Unmarshal(prev, &st); err != nil {
			return false, nil, fmt.Errorf("rate condition %s: corrupt state: %w", cond.ID, err)
		}
	}

	// Observation time is the block timestamp, not wall clock, so replayed
	// history folds the same way it did live. Wall clock is the fallback for
	// events without one.
	observedAt := event.Timestamp
	if observedAt == 0 {
		observedAt = now.Unix()
	}

	cutoff := observedAt - cfg.WindowSeconds
	kept := st.Timestamps[:0]
	for _, ts := range st.Timestamps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, observedAt)
	if len(kept) > maxRateTimestamps {
		kept = kept[len(kept)-maxRateTimestamps:]
	}
	st.Timestamps = kept

	satisfied := int64(len(st.Timestamps)) >= threshold
	if satisfied && cfg.ResetOnTrigger {
		st.Timestamps = nil
	}

	next, err := json.Marshal(st)
	if err != nil {
		return false, nil, fmt.Errorf("rate condition %s: marshal state: %w", cond.ID, err)
	}
	return satisfied, next, nil
}
