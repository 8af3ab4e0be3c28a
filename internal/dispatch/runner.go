package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/pveith/trix/internal/breaker"
	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/retry"
	"github.com/pveith/trix/internal/sink"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

// Runner is the worker-pool processor for action jobs: it resolves the sink,
// runs it with retry and a per-attempt timeout, appends the audit rows, and
// feeds the terminal outcome into the trigger's circuit breaker.
type Runner struct {
	store         *store.Store
	sinks         *sink.Registry
	actionTimeout time.Duration
	retryPolicy   *models.RetryPolicy
}

func NewRunner(s *store.Store, sinks *sink.Registry, actionTimeout time.Duration, policy *models.RetryPolicy) *Runner {
	return &Runner{
		store:         s,
		sinks:         sinks,
		actionTimeout: actionTimeout,
		retryPolicy:   policy,
	}
}

// Process executes one job to its terminal outcome. The returned error is
// informational; the outcome has already been recorded.
func (r *Runner) Process(ctx context.Context, job models.ActionJob) error {
	start := time.Now()

	s, ok := r.sinks.Get(job.Kind)
	if !ok {
		err := fmt.Errorf("no sink registered for action kind %q", job.Kind)
		r.finish(ctx, job, models.StatusFailed, "", err, 0, time.Since(start))
		return err
	}

	effective := retry.MergePolicies(r.retryPolicy, nil)
	maxRetries := *effective.MaxRetries

	var response string
	attempts := 0
	runErr := retry.Do(ctx, "sink:"+job.Kind, effective, func(ctx context.Context) error {
		attempts++
		attemptCtx := ctx
		if r.actionTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.actionTimeout)
			defer cancel()
		}

		resp, err := s.Execute(attemptCtx, job)
		if err == nil {
			response = resp
			return nil
		}

		// Record the intermediate attempt unless this failure is terminal
		// (permanent, or the retry budget is spent).
		if !retry.IsPermanent(err) && attempts <= maxRetries {
			r.append(ctx, job, models.ActionResult{
				Status:     models.StatusRetrying,
				Error:      err.Error(),
				RetryCount: attempts - 1,
				Duration:   time.Since(start),
			})
		}
		return err
	})

	duration := time.Since(start)
	if runErr != nil {
		r.finish(ctx, job, models.StatusFailed, response, runErr, attempts-1, duration)
		return runErr
	}
	r.finish(ctx, job, models.StatusSuccess, response, nil, attempts-1, duration)
	return nil
}

// finish appends the terminal audit row and feeds the breaker.
func (r *Runner) finish(ctx context.Context, job models.ActionJob, status, response string, err error, retries int, duration time.Duration) {
	result := models.ActionResult{
		Status:     status,
		Response:   response,
		RetryCount: retries,
		Duration:   duration,
	}
	if err != nil {
		result.Error = err.Error()
	}
	r.append(ctx, job, result)

	now := time.Now().UTC()
	breakerErr := r.store.MutateBreaker(ctx, job.TriggerID, func(cfg models.BreakerConfig, st models.BreakerState) models.BreakerState {
		if status == models.StatusSuccess {
			return breaker.Success(st)
		}
		next := breaker.Failure(cfg, st, now)
		if next.Phase == models.BreakerOpen && st.Phase != models.BreakerOpen {
			logger.L().Warn("Circuit breaker opened",
				"trigger_id", job.TriggerID, "consecutive_failures", next.ConsecutiveFailures)
		}
		return next
	})
	if breakerErr != nil {
		logger.L().Error("Failed to update circuit breaker",
			"trigger_id", job.TriggerID, "error", breakerErr)
	}
}

func (r *Runner) append(ctx context.Context, job models.ActionJob, result models.ActionResult) {
	result.JobID = job.ID
	result.TriggerID = job.TriggerID
	result.EventID = job.EventID
	result.Kind = job.Kind
	if err := r.store.AppendActionResult(ctx, result); err != nil {
		logger.L().Error("Failed to append action result",
			"job_id", job.ID, "status", result.Status, "error", err)
	}
}
