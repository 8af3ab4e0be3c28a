package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pveith/trix/pkg/models"
)

// ValidateConfig checks the configuration for logical consistency and
// required fields.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateApplicationSettings(&cfg.Application); err != nil {
		return fmt.Errorf("invalid application settings: %w", err)
	}
	if err := validatePollerSettings(&cfg.Poller); err != nil {
		return fmt.Errorf("invalid poller settings: %w", err)
	}
	if err := validateRetryPolicy(&cfg.Application.DefaultRetry); err != nil {
		return fmt.Errorf("invalid default retry policy: %w", err)
	}

	return nil
}

func validateApplicationSettings(app *models.ApplicationSettings) error {
	if app.LogLevel != "" {
		level := strings.ToLower(app.LogLevel)
		if level != "debug" && level != "info" && level != "warn" && level != "error" {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", app.LogLevel)
		}
	}
	if app.LogFormat != "" {
		format := strings.ToLower(app.LogFormat)
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid log_format: %s (must be text or json)", app.LogFormat)
		}
	}
	if app.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if app.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative: %d", app.MaxConcurrency)
	}
	if app.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity cannot be negative: %d", app.QueueCapacity)
	}
	if app.ActionTimeout.Duration < 0 {
		return fmt.Errorf("action_timeout cannot be negative: %s", app.ActionTimeout.Duration)
	}
	return nil
}

func validatePollerSettings(p *models.PollerSettings) error {
	if p.Interval.Duration < 0 {
		return fmt.Errorf("interval cannot be negative: %s", p.Interval.Duration)
	}
	if p.GraceWindow.Duration < 0 {
		return fmt.Errorf("grace_window cannot be negative: %s", p.GraceWindow.Duration)
	}
	if p.BatchSize < 0 {
		return fmt.Errorf("batch_size cannot be negative: %d", p.BatchSize)
	}
	return nil
}

func validateRetryPolicy(p *models.RetryPolicy) error {
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative: %d", *p.MaxRetries)
	}
	if p.Delay != nil && *p.Delay < 0 {
		return fmt.Errorf("delay cannot be negative: %f", *p.Delay)
	}
	if p.BackoffFactor != nil && *p.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be at least 1.0: %f", *p.BackoffFactor)
	}
	return nil
}
