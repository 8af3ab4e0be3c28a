package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pveith/trix/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file from the given path, applies
// environment variable overrides, and validates the result.
func LoadConfig(configPath string) (*models.Config, error) {
	yamlFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var config models.Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", configPath, err)
	}

	// Environment variables win over file values so deployments can override
	// paths and endpoints without editing the file.
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.Application.ListenAddr == "" {
		cfg.Application.ListenAddr = ":8080"
	}
	if cfg.Application.MaxConcurrency == 0 {
		cfg.Application.MaxConcurrency = 4
	}
	if cfg.Application.QueueCapacity == 0 {
		cfg.Application.QueueCapacity = 1000
	}
	if cfg.Application.ActionTimeout.Duration == 0 {
		cfg.Application.ActionTimeout.Duration = 30 * time.Second
	}
	if cfg.Poller.Interval.Duration == 0 {
		cfg.Poller.Interval.Duration = time.Minute
	}
	if cfg.Poller.GraceWindow.Duration == 0 {
		cfg.Poller.GraceWindow.Duration = 30 * time.Second
	}
	if cfg.Poller.BatchSize == 0 {
		cfg.Poller.BatchSize = 100
	}
}
