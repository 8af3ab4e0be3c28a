package models

import "time"

// Config is the root configuration structure for the trix daemon.
type Config struct {
	Application ApplicationSettings `yaml:"application"`
	Poller      PollerSettings      `yaml:"poller"`
	Sinks       SinkSettings        `yaml:"sinks"`
}

// ApplicationSettings holds global settings. Fields with env tags may be
// overridden by environment variables after the YAML file is loaded.
type ApplicationSettings struct {
	LogLevel       string      `yaml:"log_level" env:"TRIX_LOG_LEVEL"`     // "debug", "info", "warn", "error"
	LogFormat      string      `yaml:"log_format" env:"TRIX_LOG_FORMAT"`   // "text", "json"
	DatabasePath   string      `yaml:"database_path" env:"TRIX_DB_PATH"`   // SQLite database file
	ListenAddr     string      `yaml:"listen_addr" env:"TRIX_LISTEN_ADDR"` // push notification endpoint
	MaxConcurrency int         `yaml:"max_concurrency"`                    // sink worker count
	QueueCapacity  int         `yaml:"queue_capacity"`                     // action job queue buffer
	ActionTimeout  Duration    `yaml:"action_timeout"`                     // per sink attempt
	DefaultRetry   RetryPolicy `yaml:"default_retry"`                      // sink retry policy
}

// PollerSettings configures the fallback sweep that catches events whose push
// notification was lost.
type PollerSettings struct {
	Interval    Duration `yaml:"interval"`     // time between sweeps
	GraceWindow Duration `yaml:"grace_window"` // ignore events younger than this
	BatchSize   int      `yaml:"batch_size"`   // max events per sweep
}

// SinkSettings carries shared sink endpoints. Per-action configuration lives
// on the action rows themselves.
type SinkSettings struct {
	NotifyURL string `yaml:"notify_url" env:"TRIX_NOTIFY_URL"` // chat notification API base
}

// RetryPolicy defines the parameters for retrying failed sink attempts.
// Pointers distinguish an explicitly set value (even 0) from an unset field,
// allowing merges with the default policy.
type RetryPolicy struct {
	MaxRetries    *int     `yaml:"max_retries"`    // retries after the first attempt
	Delay         *float64 `yaml:"delay"`          // initial delay in seconds
	BackoffFactor *float64 `yaml:"backoff_factor"` // exponential backoff multiplier
}

// Duration wraps time.Duration to allow parsing from YAML strings like
// "10s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	var err error
	d.Duration, err = time.ParseDuration(s)
	return err
}
