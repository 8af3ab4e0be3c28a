package retry

import (
	"context"
	"errors"
	"time"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/pkg/models"
)

// Default retry constants
const (
	DefaultMaxRetries    = 3
	DefaultDelaySeconds  = 1.0
	DefaultBackoffFactor = 2.0
)

// DefaultRetryPolicy provides sensible defaults if no policy is specified.
var DefaultRetryPolicy = models.RetryPolicy{
	MaxRetries:    intPtr(DefaultMaxRetries),
	Delay:         float64Ptr(DefaultDelaySeconds),
	BackoffFactor: float64Ptr(DefaultBackoffFactor),
}

// Operation is a function that performs an action and returns an error if it fails.
type Operation func(ctx context.Context) error

// permanentError marks an error as not retryable. Operations wrap permanent
// sink rejections (malformed payloads, 4xx responses) with Permanent so the
// retry loop fails immediately instead of burning attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do executes the provided operation, retrying according to the policy if it
// fails with a retryable error. It merges the provided policy with the default
// policy for missing values.
func Do(ctx context.Context, operationName string, policy *models.RetryPolicy, op Operation) error {
	if err := ctx.Err(); err != nil {
		logger.L().Warn("Operation cancelled before first attempt", "operation", operationName, "error", err)
		return err
	}

	effectivePolicy := MergePolicies(policy, &DefaultRetryPolicy)
	l := logger.L().With("operation", operationName)

	maxRetries := *effectivePolicy.MaxRetries
	currentDelay := time.Duration(*effectivePolicy.Delay * float64(time.Second))
	backoffFactor := *effectivePolicy.BackoffFactor

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				l.Info("Operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}

		if IsPermanent(lastErr) {
			l.Warn("Operation failed permanently, not retrying", "attempt", attempt+1, "error", lastErr)
			return lastErr
		}

		l.Warn("Operation failed", "attempt", attempt+1, "max_attempts", maxRetries+1, "error", lastErr)

		if attempt == maxRetries {
			l.Error("Operation failed after exhausting all retries", "error", lastErr)
			break
		}

		select {
		case <-time.After(currentDelay):
			currentDelay = time.Duration(float64(currentDelay) * backoffFactor)
		case <-ctx.Done():
			l.Warn("Retry cancelled due to context cancellation", "error", ctx.Err())
			return ctx.Err()
		}
	}

	return lastErr
}

// MergePolicies combines a specific policy with a default policy. Specific
// values override defaults; pointers detect unset fields.
func MergePolicies(specific, defaultP *models.RetryPolicy) *models.RetryPolicy {
	if defaultP == nil {
		dpCopy := DefaultRetryPolicy
		defaultP = &dpCopy
	}

	merged := &models.RetryPolicy{}

	if specific != nil && specific.MaxRetries != nil {
		merged.MaxRetries = specific.MaxRetries
	} else if defaultP.MaxRetries != nil {
		merged.MaxRetries = defaultP.MaxRetries
	} else {
		merged.MaxRetries = intPtr(DefaultMaxRetries)
	}

	if specific != nil && specific.Delay != nil {
		merged.Delay = specific.Delay
	} else if defaultP.Delay != nil {
		merged.Delay = defaultP.Delay
	} else {
		merged.Delay = float64Ptr(DefaultDelaySeconds)
	}

	if specific != nil && specific.BackoffFactor != nil {
		merged.BackoffFactor = specific.BackoffFactor
	} else if defaultP.BackoffFactor != nil {
		merged.BackoffFactor = defaultP.BackoffFactor
	} else {
		merged.BackoffFactor = float64Ptr(DefaultBackoffFactor)
	}

	return merged
}

func intPtr(i int) *int             { return &i }
func float64Ptr(f float64) *float64 { return &f }
