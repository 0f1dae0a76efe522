// Package config loads kafka-to-nexus's configuration: a JSON file merged
// with KAFKATONEXUS_* environment overrides, validated before the service
// starts. Modeled on the teacher's config.Loader (file + env layering,
// Validate on the result) simplified to this service's small field set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/umithardal/kafka-to-nexus/errors"
)

const envPrefix = "KAFKATONEXUS"

// Config is kafka-to-nexus's full runtime configuration.
type Config struct {
	BrokerURLs      []string      `json:"broker_urls"`
	CommandTopic    string        `json:"command_topic"`
	StatusTopic     string        `json:"status_topic"`
	StatusCadence   time.Duration `json:"status_cadence"`
	OutputDir       string        `json:"output_dir"`
	AfterStopGrace  time.Duration `json:"after_stop_grace"`
	HighWaterMark   int           `json:"high_water_mark"`
	QueueCapacity   int           `json:"queue_capacity"`
	FinalizeTimeout time.Duration `json:"finalize_timeout"`
	MetricsPort     int           `json:"metrics_port"`
	ServiceID       string        `json:"service_id"`
}

// Defaults returns a Config with the service's baseline settings.
func Defaults() *Config {
	return &Config{
		BrokerURLs:      []string{"nats://localhost:4222"},
		CommandTopic:    "kafka-to-nexus.command",
		StatusTopic:     "kafka-to-nexus.status",
		StatusCadence:   2 * time.Second,
		OutputDir:       ".",
		AfterStopGrace:  5 * time.Second,
		HighWaterMark:   64 * 1024,
		QueueCapacity:   1024,
		FinalizeTimeout: 30 * time.Second,
		MetricsPort:     9090,
		ServiceID:       "kafka-to-nexus",
	}
}

// Load reads a JSON config file (if path is non-empty), applies
// KAFKATONEXUS_* environment overrides on top of it, and returns the result.
// A missing path is not an error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file "+path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "parse config file "+path)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "_COMMAND_TOPIC"); v != "" {
		cfg.CommandTopic = v
	}
	if v := os.Getenv(envPrefix + "_STATUS_TOPIC"); v != "" {
		cfg.StatusTopic = v
	}
	if v := os.Getenv(envPrefix + "_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv(envPrefix + "_SERVICE_ID"); v != "" {
		cfg.ServiceID = v
	}
	if v := os.Getenv(envPrefix + "_AFTER_STOP_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AfterStopGrace = d
		}
	}
	if v := os.Getenv(envPrefix + "_HIGH_WATER_MARK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HighWaterMark = n
		}
	}
	if v := os.Getenv(envPrefix + "_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
}

// Validate checks the configuration is internally consistent, per spec.md
// §6's "only the command-listener transport endpoint and status topic are
// required" minimum.
func (c *Config) Validate() error {
	if len(c.BrokerURLs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "broker_urls must not be empty")
	}
	if c.CommandTopic == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "command_topic is required")
	}
	if c.StatusTopic == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "status_topic is required")
	}
	if c.OutputDir == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "output_dir is required")
	}
	if c.AfterStopGrace < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "after_stop_grace must not be negative")
	}
	if c.HighWaterMark <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "high_water_mark must be positive")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", fmt.Sprintf("invalid metrics_port %d", c.MetricsPort))
	}
	return nil
}
