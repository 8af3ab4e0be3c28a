// Package evaluator implements the condition predicates triggers are built
// from. Stateless kinds are pure functions of the event; stateful kinds fold
// an accumulator blob that the caller persists transactionally.
package evaluator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pveith/trix/pkg/models"
)

// Fold evaluates one stateful condition. prev is this condition's accumulator
// from the trigger's state blob (nil on first observation); the returned blob
// replaces it. An error means the condition is misconfigured and the caller
// must discard the fold.
type Fold func(cond models.Condition, event models.Event, prev json.RawMessage, now time.Time) (bool, json.RawMessage, error)

var statefulFolds = map[string]Fold{
	models.ConditionEMA:       foldEMA,
	models.ConditionRateCount: foldRateCount,
}

// StatefulFold returns the fold for a stateful condition kind.
func StatefulFold(kind string) (Fold, bool) {
	f, ok := statefulFolds[kind]
	return f, ok
}

// EvaluateStateless evaluates a stateless condition against the event. A
// referenced field that is absent from the event makes the condition not
// satisfied; it is not an error. Unknown kinds, unknown operators and
// unparsable comparison values are configuration errors.
func EvaluateStateless(cond models.Condition, event models.Event) (bool, error) {
	switch cond.Kind {
	case models.ConditionThreshold:
		return evalThreshold(cond, event)
	case models.ConditionEquality:
		return evalEquality(cond, event)
	case models.ConditionMembership:
		return evalMembership(cond, event)
	default:
		return false, fmt.Errorf("unknown condition kind %q", cond.Kind)
	}
}

func evalThreshold(cond models.Condition, event models.Event) (bool, error) {
	threshold, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return false, fmt.Errorf("threshold condition %s: value %q is not numeric", cond.ID, cond.Value)
	}
	actual, ok := event.NumericField(cond.Field)
	if !ok {
		return false, nil
	}
	return compareNumeric(cond.Operator, actual, threshold)
}

func evalEquality(cond models.Condition, event models.Event) (bool, error) {
	actual, ok := event.Field(cond.Field)
	if !ok {
		return false, nil
	}
	switch cond.Operator {
	case "eq", "":
		return actual == cond.Value, nil
	case "neq":
		return actual != cond.Value, nil
	default:
		return false, fmt.Errorf("equality condition %s: unknown operator %q", cond.ID, cond.Operator)
	}
}

// evalMembership tests the field against a comma-separated candidate set.
// Candidates are trimmed so "a, b, c" and "a,b,c" behave the same.
func evalMembership(cond models.Condition, event models.Event) (bool, error) {
	actual, ok := event.Field(cond.Field)
	if !ok {
		return false, nil
	}

	found := false
	for _, candidate := range strings.Split(cond.Value, ",") {
		if strings.TrimSpace(candidate) == actual {
			found = true
			break
		}
	}

	switch cond.Operator {
	case "in", "":
		return found, nil
	case "not_in":
		return !found, nil
	default:
		return false, fmt.Errorf("membership condition %s: unknown operator %q", cond.ID, cond.Operator)
	}
}

func compareNumeric(operator string, actual, threshold float64) (bool, error) {
	switch operator {
	case "gt":
		return actual > threshold, nil
	case "gte":
		return actual >= threshold, nil
	case "lt":
		return actual < threshold, nil
	case "lte":
		return actual <= threshold, nil
	case "eq":
		return actual == threshold, nil
	case "neq":
		return actual != threshold, nil
	default:
		return false, fmt.Errorf("unknown numeric operator %q", operator)
	}
}
