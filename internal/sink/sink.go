// Package sink implements the side-effect executors behind action kinds.
// Each sink turns a job's config plus the originating event into one external
// effect. Errors marked permanent (via the retry package) are not retried by
// the dispatch worker.
package sink

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pveith/trix/pkg/models"
)

// Sink executes one kind of configured action.
type Sink interface {
	// Kind returns the action kind this sink handles.
	Kind() string
	// Execute performs the side effect and returns a short response summary
	// for the audit log.
	Execute(ctx context.Context, job models.ActionJob) (string, error)
}

// Registry maps action kinds to their sinks.
type Registry struct {
	sinks map[string]Sink
}

// NewRegistry builds a registry from the given sinks. Later sinks with the
// same kind override earlier ones.
func NewRegistry(sinks ...Sink) *Registry {
	r := &Registry{sinks: make(map[string]Sink, len(sinks))}
	for _, s := range sinks {
		r.sinks[s.Kind()] = s
	}
	return r
}

// Get returns the sink for an action kind.
func (r *Registry) Get(kind string) (Sink, bool) {
	s, ok := r.sinks[kind]
	return s, ok
}

// placeholderRegex matches the {{field}} template syntax.
var placeholderRegex = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// renderTemplate replaces {{field}} placeholders with the event's field
// values. Referencing a field absent from the event is an error so a
// half-rendered payload never reaches an external system.
func renderTemplate(template string, event models.Event) (string, error) {
	var firstErr error
	result := placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRegex.FindStringSubmatch(match)[1]
		if key == "timestamp" {
			return strconv.FormatInt(event.Timestamp, 10)
		}
		value, ok := event.Field(key)
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("placeholder {{%s}} has no value on event %s", key, event.ID)
			}
			return match
		}
		return value
	})
	return result, firstErr
}
