// Package config defines the telemetryd configuration and its YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	EventLog  EventLogConfig  `yaml:"event_log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Name identifies the service in system info responses.
	Name string `yaml:"name"`

	// Address is the listen address, e.g. ":8080".
	Address string `yaml:"address"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig configures session lifecycle behavior.
type TelemetryConfig struct {
	// RetentionDelay is how long a closed session stays resolvable
	// before eviction.
	RetentionDelay time.Duration `yaml:"retention_delay"`
}

// EventLogConfig configures the on-disk event trail.
type EventLogConfig struct {
	// Dir is the log root directory.
	Dir string `yaml:"dir"`

	// MaxFileSize is the per-file rotation threshold in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// QueueDepth is the append queue capacity.
	QueueDepth int `yaml:"queue_depth"`

	// PurgeDefaultDays is the default age for the cleanup endpoint.
	PurgeDefaultDays int `yaml:"purge_default_days"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
// The path comes from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "telemetryd"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Telemetry.RetentionDelay == 0 {
		cfg.Telemetry.RetentionDelay = 60 * time.Second
	}
	if cfg.EventLog.Dir == "" {
		cfg.EventLog.Dir = "logs"
	}
	if cfg.EventLog.MaxFileSize == 0 {
		cfg.EventLog.MaxFileSize = 10 << 20
	}
	if cfg.EventLog.QueueDepth == 0 {
		cfg.EventLog.QueueDepth = 1024
	}
	if cfg.EventLog.PurgeDefaultDays == 0 {
		cfg.EventLog.PurgeDefaultDays = 7
	}
}

// Validate checks for values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Telemetry.RetentionDelay < 0 {
		return fmt.Errorf("telemetry.retention_delay must not be negative")
	}
	if c.EventLog.MaxFileSize < 0 {
		return fmt.Errorf("event_log.max_file_size must not be negative")
	}
	if c.EventLog.QueueDepth < 0 {
		return fmt.Errorf("event_log.queue_depth must not be negative")
	}
	if c.EventLog.PurgeDefaultDays < 0 {
		return fmt.Errorf("event_log.purge_default_days must not be negative")
	}
	return nil
}
