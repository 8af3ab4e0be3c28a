// Package matcher finds the triggers satisfied by an event. Candidate
// selection is an indexed store query; condition evaluation runs per trigger,
// with stateful folds applied inside the trigger's state transaction.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pveith/trix/internal/evaluator"
	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

// Match is the evaluation outcome for one candidate trigger. Err is set when
// the trigger is misconfigured; a misconfigured trigger never dispatches and
// never taints its siblings.
type Match struct {
	Trigger   models.Trigger
	Satisfied bool
	Err       error
}

type Matcher struct {
	store *store.Store
}

func New(s *store.Store) *Matcher {
	return &Matcher{store: s}
}

// Match evaluates every enabled candidate trigger against the event and
// returns one outcome per candidate. Candidates are triggers in the event's
// registry whose chain matches or is the wildcard. maxTriggers caps the
// candidate set; excess candidates are dropped with a warning.
func (m *Matcher) Match(ctx context.Context, event models.Event, maxTriggers int) ([]Match, error) {
	triggers, err := m.store.ListTriggers(ctx, event.ChainID, event.Registry)
	if err != nil {
		return nil, fmt.Errorf("load candidate triggers: %w", err)
	}
	if maxTriggers > 0 && len(triggers) > maxTriggers {
		logger.L().Warn("Candidate trigger set exceeds cap, truncating",
			"event_id", event.ID, "candidates", len(triggers), "cap", maxTriggers)
		triggers = triggers[:maxTriggers]
	}
	if len(triggers) == 0 {
		return nil, nil
	}

	ids := make([]string, len(triggers))
	for i, t := range triggers {
		ids[i] = t.ID
	}
	conditions, err := m.store.ListConditions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load trigger conditions: %w", err)
	}

	out := make([]Match, 0, len(triggers))
	for _, t := range triggers {
		satisfied, evalErr := m.evaluate(ctx, t, conditions[t.ID], event)
		if evalErr != nil {
			logger.L().Warn("Trigger evaluation failed, skipping trigger",
				"trigger_id", t.ID, "event_id", event.ID, "error", evalErr)
		}
		out = append(out, Match{Trigger: t, Satisfied: satisfied, Err: evalErr})
	}
	return out, nil
}

// evaluate applies every condition of one trigger. All conditions run even
// when an earlier one already failed: stateful accumulators must observe
// every matching event exactly once regardless of the outcome.
func (m *Matcher) evaluate(ctx context.Context, t models.Trigger, conds []models.Condition, event models.Event) (bool, error) {
	if len(conds) == 0 {
		// A trigger with no conditions matches every candidate event.
		return true, nil
	}

	var stateless, stateful []models.Condition
	for _, c := range conds {
		if c.Stateful() {
			stateful = append(stateful, c)
		} else {
			stateless = append(stateless, c)
		}
	}

	satisfied := true
	for _, c := range stateless {
		ok, err := evaluator.EvaluateStateless(c, event)
		if err != nil {
			return false, err
		}
		satisfied = satisfied && ok
	}

	if len(stateful) == 0 {
		return satisfied, nil
	}

	// Stateful folds run inside the trigger's state transaction. Any fold
	// error rolls back every fold of this trigger for this event.
	now := time.Now().UTC()
	err := m.store.WithTriggerState(ctx, t.ID, func(prev json.RawMessage) (json.RawMessage, error) {
		blob := map[string]json.RawMessage{}
		if len(prev) > 0 {
			if err := json.Unmarshal(prev, &blob); err != nil {
				return nil, fmt.Errorf("corrupt state for trigger %s: %w", t.ID, err)
			}
		}

		for _, c := range stateful {
			fold, ok := evaluator.StatefulFold(c.Kind)
			if !ok {
				return nil, fmt.Errorf("unknown condition kind %q", c.Kind)
			}
			condSatisfied, next, err := fold(c, event, blob[c.ID], now)
			if err != nil {
				return nil, err
			}
			blob[c.ID] = next
			satisfied = satisfied && condSatisfied
		}

		return json.Marshal(blob)
	})
	if err != nil {
		return false, err
	}
	return satisfied, nil
}
