package evaluator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pveith/trix/pkg/models"
)

// emaState is the accumulator of one ema_threshold condition.
type emaState struct {
	EMA   float64 `json:"ema"`
	Count int64   `json:"count"`
}

// emaConfig supplies the smoothing factor, either directly or derived from a
// window size as 2/(window_size+1).
type emaConfig struct {
	Alpha      *float64 `json:"alpha,omitempty"`
	WindowSize *int     `json:"window_size,omitempty"`
}

func (c emaConfig) smoothing() (float64, error) {
	if c.Alpha != nil {
		if *c.Alpha <= 0 || *c.Alpha > 1 {
			return 0, fmt.Errorf("alpha %v out of range (0, 1]", *c.Alpha)
		}
		return *c.Alpha, nil
	}
	if c.WindowSize != nil {
		if *c.WindowSize < 1 {
			return 0, fmt.Errorf("window_size %d must be positive", *c.WindowSize)
		}
		return 2.0 / float64(*c.WindowSize+1), nil
	}
	return 0, fmt.Errorf("ema condition requires alpha or window_size")
}

// foldEMA updates the exponential moving average with the event's field value
// and compares the new average against the condition threshold. The first
// observation seeds the average with the raw value. An absent field leaves the
// accumulator untouched and the condition unsatisfied.
func foldEMA(cond models.Condition, event models.Event, prev json.RawMessage, _ time.Time) (bool, json.RawMessage, error) {
	threshold, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return false, nil, fmt.Errorf("ema condition %s: value %q is not numeric", cond.ID, cond.Value)
	}

	var cfg emaConfig
	if len(cond.Config) > 0 {
		if err := json.Unmarshal(cond.Config, &cfg); err != nil {
			return false, nil, fmt.Errorf("ema condition %s: bad config: %w", cond.ID, err)
		}
	}
	alpha, err := cfg.smoothing()
	if err != nil {
		return false, nil, fmt.Errorf("ema condition %s: %w", cond.ID, err)
	}

	observed, ok := event.NumericField(cond.Field)
	if !ok {
		return false, prev, nil
	}

	var st emaState
	if len(prev) > 0 {
		if err := json.Unmarshal(prev, &st); err != nil {
			return false, nil, fmt.Errorf("ema condition %s: corrupt state: %w", cond.ID, err)
		}
	}

	if st.Count == 0 {
		st.EMA = observed
	} else {
		st.EMA = alpha*observed + (1-alpha)*st.EMA
	}
	st.Count++

	next, err := json.Marshal(st)
	if err != nil {
		return false, nil, fmt.Errorf("ema condition %s: marshal state: %w", cond.ID, err)
	}

	satisfied, err := compareNumeric(cond.Operator, st.EMA, threshold)
	if err != nil {
		return false, nil, fmt.Errorf("ema condition %s: %w", cond.ID, err)
	}
	return satisfied, next, nil
}
